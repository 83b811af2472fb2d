package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ccmemory/ccmemory/internal/llm"
	"github.com/ccmemory/ccmemory/internal/memory"
	"github.com/ccmemory/ccmemory/internal/relationship"
	"github.com/ccmemory/ccmemory/internal/search"
	"github.com/ccmemory/ccmemory/internal/store"
)

// SupersedeSimilarityThreshold is the minimum cosine similarity against
// an existing same-type memory before a secondary supersede check runs
// (§4.6 step 4).
const SupersedeSimilarityThreshold = 0.7

// SupersedeConfidenceThreshold is the minimum extractor confidence a
// preference candidate needs before the supersede check is attempted.
const SupersedeConfidenceThreshold = 0.8

// SupersedeSearchLimit bounds how many same-type existing memories are
// compared against one candidate.
const SupersedeSearchLimit = 5

// Pipeline wires the accumulator, classifier/extractor, dedup-aware
// create, and supersede-check into the single extractor run described in
// §4.6.
type Pipeline struct {
	db    *store.DB
	acc   *Accumulator
	mem   *memory.Store
	srch  *search.Engine
	graph *relationship.Graph
	llm   llm.Completer
}

// NewPipeline wires a Pipeline from its dependencies.
func NewPipeline(db *store.DB, acc *Accumulator, mem *memory.Store, srch *search.Engine, graph *relationship.Graph, completer llm.Completer) *Pipeline {
	return &Pipeline{db: db, acc: acc, mem: mem, srch: srch, graph: graph, llm: completer}
}

// RunResult summarizes one extractor invocation for the audit log.
type RunResult struct {
	Found int
	Kept  int
}

// Run executes the full extractor pipeline for one session segment:
// load the accumulator, call the LLM extractor, validate/dedup/store
// each candidate via memory.Store.Create (which already implements the
// simhash dedup + reinforce + session-link logic), run the supersede
// check for confident preference candidates, then clear the
// accumulator and record the audit segment (§4.6 steps 1-6).
func (p *Pipeline) Run(ctx context.Context, sessionID, projectID, trigger string, now time.Time) (*RunResult, error) {
	start := now

	seg, err := p.acc.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		_ = p.db.RecordExtractionSegment(ctx, uuid.NewString(), sessionID, projectID, trigger, start, now, 0, 0, nil, now)
		return &RunResult{}, nil
	}

	candidates, err := Extract(ctx, p.llm, seg)
	if err != nil {
		_ = p.db.RecordExtractionSegment(ctx, seg.SegmentID, sessionID, projectID, trigger, seg.SegmentStartTS, now, 0, 0, err, now)
		return nil, err
	}

	kept := 0
	for _, cand := range candidates {
		stored, err := p.storeCandidate(ctx, cand, sessionID, projectID, seg.SegmentID, now)
		if err != nil {
			slog.Warn("failed to store extraction candidate", slog.String("error", err.Error()))
			continue
		}
		if stored {
			kept++
		}
	}

	if err := p.acc.Clear(ctx, sessionID); err != nil {
		return nil, err
	}

	recErr := p.db.RecordExtractionSegment(ctx, seg.SegmentID, sessionID, projectID, trigger, seg.SegmentStartTS, now, len(candidates), kept, nil, now)
	return &RunResult{Found: len(candidates), Kept: kept}, recErr
}

// storeCandidate persists one candidate via memory.Store.Create (dedup,
// reinforce, session-link fall out of that call for free), then, for
// confident preference candidates, checks whether a semantically similar
// existing memory of the same type should be superseded (§4.6 step 4).
func (p *Pipeline) storeCandidate(ctx context.Context, cand *Candidate, sessionID, projectID, segmentID string, now time.Time) (bool, error) {
	sid := sessionID
	segID := segmentID
	typ := cand.Type

	ctxMap := map[string]string{}
	if cand.Context != "" {
		ctxMap["note"] = cand.Context
	}

	res, err := p.mem.Create(ctx, memory.CreateParams{
		ProjectID:  projectID,
		SessionID:  &sid,
		SegmentID:  &segID,
		Content:    cand.Content,
		Context:    ctxMap,
		MemoryType: &typ,
		Files:      cand.RelatedFiles,
		Confidence: cand.Confidence,
	}, now)
	if err != nil {
		return false, err
	}

	if res.Deduped || cand.Type != store.MemoryTypePreference || cand.Confidence < SupersedeConfidenceThreshold {
		return true, nil
	}

	p.checkSupersede(ctx, res.Memory, projectID, now)
	return true, nil
}

// checkSupersede looks for a prior same-type memory semantically similar
// enough to the freshly stored one to warrant superseding it. Failures
// here are logged and swallowed: a missed supersede just leaves both
// memories live, which is a safe degraded outcome.
func (p *Pipeline) checkSupersede(ctx context.Context, newMem *store.Memory, projectID string, now time.Time) {
	if p.srch == nil || p.graph == nil {
		return
	}

	typ := newMem.MemoryType
	results, err := p.srch.Search(ctx, search.Options{
		Query:      newMem.Content,
		ProjectID:  projectID,
		MemoryType: typ,
		Mode:       search.ModeSemantic,
		Limit:      SupersedeSearchLimit,
	})
	if err != nil {
		slog.Warn("supersede search failed", slog.String("error", err.Error()))
		return
	}

	for _, r := range results {
		if r.Memory.ID == newMem.ID {
			continue
		}
		if r.VectorScore < SupersedeSimilarityThreshold {
			continue
		}
		if p.llmConfirmsSupersede(ctx, r.Memory.Content, newMem.Content) {
			if err := p.graph.Supersede(ctx, newMem.ID, r.Memory.ID, now); err != nil {
				slog.Warn("supersede link failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

const supersedeCheckPrompt = `Does the NEW statement replace or contradict the OLD statement about the same user preference? Respond with only "true" or "false".

OLD: %s
NEW: %s`

func (p *Pipeline) llmConfirmsSupersede(ctx context.Context, oldContent, newContent string) bool {
	if p.llm == nil {
		return false
	}
	out, err := p.llm.Complete(ctx, fmt.Sprintf(supersedeCheckPrompt, oldContent, newContent), 10)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(out), "true")
}
