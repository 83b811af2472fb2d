package search

import (
	"context"
	"sort"
	"time"

	"github.com/ccmemory/ccmemory/internal/embed"
	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/relationship"
	"github.com/ccmemory/ccmemory/internal/store"
)

// Engine implements the hybrid memory search pipeline.
type Engine struct {
	db       *store.DB
	vectors  store.VectorStore
	embedder embed.Embedder
	graph    *relationship.Graph
	fusion   *Fusion
}

// New wires a search Engine from its dependencies.
func New(db *store.DB, vectors store.VectorStore, embedder embed.Embedder, graph *relationship.Graph) *Engine {
	return &Engine{db: db, vectors: vectors, embedder: embedder, graph: graph, fusion: DefaultFusion()}
}

// Search runs keyword, semantic, or hybrid retrieval and applies the
// post-fusion filters.
func (e *Engine) Search(ctx context.Context, opts Options) ([]*Result, error) {
	opts = opts.WithDefaults()
	if opts.Query == "" {
		return nil, ccerrors.New(ccerrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}

	window := opts.Limit * 3

	var results []*Result
	switch opts.Mode {
	case ModeKeyword:
		hits, err := e.db.SearchMemoriesFTS(ctx, opts.ProjectID, opts.Query, window)
		if err != nil {
			return nil, err
		}
		memories, err := e.loadMemories(ctx, ownerIDs(hits))
		if err != nil {
			return nil, err
		}
		results = e.fusion.Fuse(hits, nil, memories)
	case ModeSemantic:
		hits, err := e.vectorSearch(ctx, opts.ProjectID, opts.Query, window)
		if err != nil {
			return nil, err
		}
		memories, err := e.loadMemories(ctx, vectorIDs(hits))
		if err != nil {
			return nil, err
		}
		results = e.fusion.Fuse(nil, hits, memories)
	default: // ModeHybrid
		kwHits, err := e.db.SearchMemoriesFTS(ctx, opts.ProjectID, opts.Query, window)
		if err != nil {
			return nil, err
		}
		vecHits, err := e.vectorSearch(ctx, opts.ProjectID, opts.Query, window)
		if err != nil {
			return nil, err
		}
		ids := append(ownerIDs(kwHits), vectorIDs(vecHits)...)
		memories, err := e.loadMemories(ctx, ids)
		if err != nil {
			return nil, err
		}
		results = e.fusion.Fuse(kwHits, vecHits, memories)
	}

	results = applyFilters(results, opts)

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	if err := e.attach(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

// Touch records a user-facing retrieval. Search itself never reinforces;
// callers that represent an explicit retrieval call Touch separately.
func (e *Engine) Touch(ctx context.Context, memoryID string, now time.Time) error {
	return e.db.TouchMemory(ctx, memoryID, now)
}

// Timeline returns the anchor plus up to `before`/`after` memories in the
// same project ordered by created_at.
func (e *Engine) Timeline(ctx context.Context, anchorID string, before, after int) (*TimelineResult, error) {
	anchor, err := e.db.GetMemory(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	beforeMems, err := e.db.ListMemories(ctx, store.MemoryFilter{
		ProjectID: anchor.ProjectID, OrderBy: "created_at", Descending: true, Limit: before,
	})
	if err != nil {
		return nil, err
	}
	afterMems, err := e.db.ListMemories(ctx, store.MemoryFilter{
		ProjectID: anchor.ProjectID, OrderBy: "created_at", Descending: false, Limit: after,
	})
	if err != nil {
		return nil, err
	}

	beforeMems = filterBeforeAnchor(beforeMems, anchor)
	afterMems = filterAfterAnchor(afterMems, anchor)

	res := &TimelineResult{
		Anchor: e.toTimelineEntry(ctx, anchor),
	}
	for _, m := range beforeMems {
		res.Before = append(res.Before, e.toTimelineEntry(ctx, m))
	}
	for _, m := range afterMems {
		res.After = append(res.After, e.toTimelineEntry(ctx, m))
	}
	return res, nil
}

func filterBeforeAnchor(mems []*store.Memory, anchor *store.Memory) []*store.Memory {
	out := make([]*store.Memory, 0, len(mems))
	for _, m := range mems {
		if m.ID != anchor.ID && m.CreatedAt.Before(anchor.CreatedAt) {
			out = append(out, m)
		}
	}
	return out
}

func filterAfterAnchor(mems []*store.Memory, anchor *store.Memory) []*store.Memory {
	out := make([]*store.Memory, 0, len(mems))
	for _, m := range mems {
		if m.ID != anchor.ID && m.CreatedAt.After(anchor.CreatedAt) {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) toTimelineEntry(ctx context.Context, m *store.Memory) *TimelineEntry {
	entry := &TimelineEntry{Memory: m}
	if m.SessionID != nil {
		if s, err := e.db.GetSession(ctx, *m.SessionID); err == nil {
			entry.SessionSummary = s.Summary
		}
	}
	return entry
}

func (e *Engine) vectorSearch(ctx context.Context, projectID, query string, k int) ([]*store.VectorResult, error) {
	if e.embedder == nil || e.vectors == nil {
		return nil, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, ccerrors.EmbeddingUnavailable("query embedding failed", err)
	}
	return e.vectors.Search(ctx, vec, k)
}

func (e *Engine) loadMemories(ctx context.Context, ids []string) (map[string]*store.Memory, error) {
	out := make(map[string]*store.Memory, len(ids))
	for _, id := range dedupeIDs(ids) {
		m, err := e.db.GetMemory(ctx, id)
		if err != nil {
			if ccerrors.GetCode(err) == ccerrors.ErrCodeMemoryNotFound {
				continue
			}
			return nil, err
		}
		out[id] = m
	}
	return out, nil
}

func (e *Engine) attach(ctx context.Context, results []*Result) error {
	for _, r := range results {
		count, err := e.graph.OutgoingCount(ctx, r.Memory.ID)
		if err != nil {
			return err
		}
		r.OutgoingRelCount = count

		if r.Memory.SessionID != nil {
			if s, err := e.db.GetSession(ctx, *r.Memory.SessionID); err == nil {
				r.SourceSessionSummary = s.Summary
			}
		}
	}
	return nil
}

func applyFilters(results []*Result, opts Options) []*Result {
	now := time.Now()
	out := make([]*Result, 0, len(results))
	for _, r := range results {
		m := r.Memory
		if m.IsDeleted {
			continue
		}
		if !opts.IncludeSuperseded && m.IsSuperseded(now) {
			continue
		}
		if opts.Sector != nil && m.Sector != *opts.Sector {
			continue
		}
		if opts.Tier != nil && m.Tier != *opts.Tier {
			continue
		}
		if opts.MemoryType != nil && (m.MemoryType == nil || *m.MemoryType != *opts.MemoryType) {
			continue
		}
		if opts.MinSalience != nil && m.Salience < *opts.MinSalience {
			continue
		}
		if opts.SessionID != nil && (m.SessionID == nil || *m.SessionID != *opts.SessionID) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func ownerIDs(hits []*store.KeywordResult) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.OwnerID
	}
	return out
}

func vectorIDs(hits []*store.VectorResult) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
