package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ccmemory/ccmemory/internal/llm"
)

// SignalCategory buckets a user prompt so the pipeline can decide
// whether it is worth a full extraction pass (§4.6 step "fast
// classification").
type SignalCategory string

const (
	CategoryCorrection SignalCategory = "correction"
	CategoryPreference SignalCategory = "preference"
	CategoryContext    SignalCategory = "context"
	CategoryTask       SignalCategory = "task"
	CategoryQuestion   SignalCategory = "question"
	CategoryFeedback   SignalCategory = "feedback"
)

// ClassifierTokenBudget is the max output tokens the fast classification
// call is allowed (§4.6).
const ClassifierTokenBudget = 200

// Signal is the classifier's verdict on one user prompt.
type Signal struct {
	Category    SignalCategory `json:"category"`
	Extractable bool           `json:"extractable"`
	Summary     *string        `json:"summary"`
}

const classifierPrompt = `Classify the following user message from a coding session. Respond with a single JSON object and nothing else, matching this shape:
{"category":"correction|preference|context|task|question|feedback","extractable":true|false,"summary":"short summary or null"}

extractable is true only if the message contains a durable fact worth remembering across sessions (a preference, a correction to prior behavior, project context, or feedback) - not if it is a one-off question or routine task instruction.

Message:
%s`

// Classify asks the completer whether prompt carries an extractable
// signal. On any LLM or decode failure it returns a non-extractable
// context signal rather than propagating the error - classification
// failures must never block the session (§4.6 failure semantics).
func Classify(ctx context.Context, c llm.Completer, prompt string) (*Signal, error) {
	if strings.TrimSpace(prompt) == "" {
		return &Signal{Category: CategoryContext, Extractable: false}, nil
	}

	out, err := c.Complete(ctx, fmt.Sprintf(classifierPrompt, prompt), ClassifierTokenBudget)
	if err != nil {
		return &Signal{Category: CategoryContext, Extractable: false}, nil
	}

	var sig Signal
	if err := json.Unmarshal([]byte(out), &sig); err != nil {
		return &Signal{Category: CategoryContext, Extractable: false}, nil
	}
	if !validCategory(sig.Category) {
		sig.Category = CategoryContext
	}
	return &sig, nil
}

func validCategory(c SignalCategory) bool {
	switch c {
	case CategoryCorrection, CategoryPreference, CategoryContext, CategoryTask, CategoryQuestion, CategoryFeedback:
		return true
	}
	return false
}
