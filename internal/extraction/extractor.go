package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ccmemory/ccmemory/internal/llm"
	"github.com/ccmemory/ccmemory/internal/store"
)

// MaxCandidates bounds the extractor's structured output (§4.6: "0-5
// items").
const MaxCandidates = 5

// ExtractorTokenBudget is generous enough for up to MaxCandidates short
// JSON objects.
const ExtractorTokenBudget = 800

// Candidate is one proposed memory the structured extractor found in a
// conversation segment.
type Candidate struct {
	Type         store.MemoryType `json:"type"`
	Content      string           `json:"content"`
	Context      string           `json:"context"`
	Confidence   float64          `json:"confidence"`
	RelatedFiles []string         `json:"relatedFiles"`
}

const extractorPrompt = `You are extracting durable memories from a coding session segment. Given the user prompts, files touched, commands run, and the assistant's last message below, identify 0 to %d distinct facts worth remembering across future sessions: user preferences, corrections to prior assistant behavior, durable project context, or explicit feedback. Do not extract one-off questions or routine task descriptions.

Respond with a JSON array (possibly empty) of objects shaped exactly like:
{"type":"preference|decision|gotcha|pattern|codebase","content":"...","context":"...","confidence":0.0-1.0,"relatedFiles":["..."]}

Segment:
User prompts: %s
Files read: %s
Files modified: %s
Commands: %s
Last assistant message: %s
`

// Extract runs the structured extraction call over a segment accumulator
// and the session's last assistant message, returning at most
// MaxCandidates validated candidates. Malformed or over-budget model
// output is truncated/dropped rather than erroring - a noisy or empty
// extraction is the correct degraded behavior (§4.6).
func Extract(ctx context.Context, c llm.Completer, seg *store.SegmentAccumulator) ([]*Candidate, error) {
	lastMsg := ""
	if seg.LastAssistantMsg != nil {
		lastMsg = *seg.LastAssistantMsg
	}

	prompt := fmt.Sprintf(extractorPrompt,
		MaxCandidates,
		strings.Join(seg.UserPrompts, " | "),
		strings.Join(seg.FilesRead, ", "),
		strings.Join(seg.FilesModified, ", "),
		commandsSummary(seg.Commands),
		lastMsg,
	)

	out, err := c.Complete(ctx, prompt, ExtractorTokenBudget)
	if err != nil {
		return nil, nil
	}

	var raw []*Candidate
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, nil
	}

	var candidates []*Candidate
	for _, cand := range raw {
		if cand == nil || strings.TrimSpace(cand.Content) == "" {
			continue
		}
		if !validMemoryType(cand.Type) {
			continue
		}
		if cand.Confidence < 0 {
			cand.Confidence = 0
		}
		if cand.Confidence > 1 {
			cand.Confidence = 1
		}
		candidates = append(candidates, cand)
		if len(candidates) >= MaxCandidates {
			break
		}
	}
	return candidates, nil
}

func validMemoryType(t store.MemoryType) bool {
	switch t {
	case store.MemoryTypePreference, store.MemoryTypeDecision, store.MemoryTypeGotcha, store.MemoryTypePattern, store.MemoryTypeCodebase:
		return true
	}
	return false
}

func commandsSummary(cmds []store.CommandObservation) string {
	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		status := "ok"
		if c.HasError {
			status = "error"
		}
		parts = append(parts, fmt.Sprintf("%s[%s]", c.Command, status))
	}
	return strings.Join(parts, ", ")
}
