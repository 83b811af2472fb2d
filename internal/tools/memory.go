package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ccmemory/ccmemory/internal/memory"
	"github.com/ccmemory/ccmemory/internal/search"
	"github.com/ccmemory/ccmemory/internal/store"
)

// memorySearchParams is memory_search's input (§6.2).
type memorySearchParams struct {
	Query             string           `json:"query"`
	Sector            *store.Sector    `json:"sector,omitempty"`
	MemoryType        *store.MemoryType `json:"memoryType,omitempty"`
	SessionID         *string          `json:"sessionId,omitempty"`
	ProjectID         string           `json:"projectId"`
	IncludeSuperseded bool             `json:"includeSuperseded,omitempty"`
	Limit             int              `json:"limit,omitempty"`
}

type memorySearchHit struct {
	Memory               *store.Memory `json:"memory"`
	Score                float64       `json:"score"`
	OutgoingRelCount     int           `json:"outgoingRelCount"`
	IsSuperseded         bool          `json:"isSuperseded"`
	SourceSessionSummary *string       `json:"sourceSessionSummary,omitempty"`
}

// MemorySearch runs the hybrid memory search engine and returns ranked
// hits.
func (d *Deps) MemorySearch(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p memorySearchParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	results, err := d.Search.Search(ctx, search.Options{
		Query:             p.Query,
		ProjectID:         p.ProjectID,
		SessionID:         p.SessionID,
		Sector:            p.Sector,
		MemoryType:        p.MemoryType,
		IncludeSuperseded: p.IncludeSuperseded,
		Limit:             p.Limit,
	})
	if err != nil {
		return result(nil, err)
	}
	hits := make([]*memorySearchHit, len(results))
	for i, r := range results {
		hits[i] = &memorySearchHit{
			Memory:               r.Memory,
			Score:                r.Score,
			OutgoingRelCount:     r.OutgoingRelCount,
			IsSuperseded:         r.IsSuperseded,
			SourceSessionSummary: r.SourceSessionSummary,
		}
	}
	return result(hits, nil)
}

// memoryTimelineParams is memory_timeline's input.
type memoryTimelineParams struct {
	AnchorID string `json:"anchorId"`
	Before   int    `json:"before,omitempty"`
	After    int    `json:"after,omitempty"`
}

// MemoryTimeline returns the anchor memory plus surrounding context.
func (d *Deps) MemoryTimeline(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p memoryTimelineParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	before, after := p.Before, p.After
	if before <= 0 {
		before = 5
	}
	if after <= 0 {
		after = 5
	}
	timeline, err := d.Search.Timeline(ctx, p.AnchorID, before, after)
	return result(timeline, err)
}

// memoryAddParams is memory_add's input.
type memoryAddParams struct {
	Content    string            `json:"content"`
	ProjectID  string            `json:"projectId"`
	SessionID  *string           `json:"sessionId,omitempty"`
	Sector     *store.Sector     `json:"sector,omitempty"`
	MemoryType *store.MemoryType `json:"memoryType,omitempty"`
	Tier       store.Tier        `json:"tier,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Files      []string          `json:"files,omitempty"`
}

// MemoryAdd creates (or reinforces a near-duplicate of) a memory.
func (d *Deps) MemoryAdd(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p memoryAddParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	res, err := d.Memories.Create(ctx, memory.CreateParams{
		ProjectID:  p.ProjectID,
		SessionID:  p.SessionID,
		Content:    p.Content,
		MemoryType: p.MemoryType,
		Sector:     p.Sector,
		Tier:       p.Tier,
		Tags:       p.Tags,
		Files:      p.Files,
	}, time.Now())
	return result(res, err)
}

// memoryReinforceParams is memory_reinforce's input.
type memoryReinforceParams struct {
	ID     string   `json:"id"`
	Amount *float64 `json:"amount,omitempty"`
}

// MemoryReinforce applies diminishing-returns salience growth.
func (d *Deps) MemoryReinforce(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p memoryReinforceParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	amount := 0.1
	if p.Amount != nil {
		amount = *p.Amount
	}
	m, err := d.Memories.Reinforce(ctx, p.ID, amount, time.Now())
	return result(m, err)
}

// memoryDeemphasizeParams is memory_deemphasize's input.
type memoryDeemphasizeParams struct {
	ID     string   `json:"id"`
	Amount *float64 `json:"amount,omitempty"`
}

// MemoryDeemphasize lowers salience by a flat amount.
func (d *Deps) MemoryDeemphasize(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p memoryDeemphasizeParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	amount := 0.2
	if p.Amount != nil {
		amount = *p.Amount
	}
	m, err := d.Memories.Deemphasize(ctx, p.ID, amount, time.Now())
	return result(m, err)
}

// memoryDeleteParams is memory_delete's input.
type memoryDeleteParams struct {
	ID   string `json:"id"`
	Hard bool   `json:"hard,omitempty"`
}

// MemoryDelete soft- or hard-deletes a memory.
func (d *Deps) MemoryDelete(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p memoryDeleteParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	err := d.Memories.Delete(ctx, p.ID, p.Hard, time.Now())
	return result(struct {
		Deleted bool `json:"deleted"`
	}{Deleted: err == nil}, err)
}

// memorySupersedeParams is memory_supersede's input.
type memorySupersedeParams struct {
	OldID string `json:"oldId"`
	NewID string `json:"newId"`
}

// MemorySupersede inserts the SUPERSEDES edge and closes the old memory's
// validity window.
func (d *Deps) MemorySupersede(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p memorySupersedeParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	err := d.Graph.Supersede(ctx, p.NewID, p.OldID, time.Now())
	return result(struct {
		Superseded bool `json:"superseded"`
	}{Superseded: err == nil}, err)
}
