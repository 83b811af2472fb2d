// Package relationship implements the typed directed edges between
// memories and the supersede side-effect.
package relationship

import (
	"context"
	"time"

	"github.com/ccmemory/ccmemory/internal/coordinator"
	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/store"
)

// MaxTraversalDepth bounds getRelated's multi-hop walk so a dense graph
// can't make a single query unbounded.
const MaxTraversalDepth = 3

// Graph wraps the store's relationship tables with the domain operations.
type Graph struct {
	db     *store.DB
	events *coordinator.EventBus
}

// New wraps a DB as a relationship Graph.
func New(db *store.DB) *Graph {
	return &Graph{db: db}
}

// SetEventBus attaches the event bus Supersede publishes to. Publishing is
// fire-and-forget: failures are swallowed, matching the coordinator's
// best-effort delivery contract (§4.9).
func (g *Graph) SetEventBus(bus *coordinator.EventBus) {
	g.events = bus
}

func (g *Graph) publish(eventType, memoryID, projectID string, now time.Time) {
	if g.events == nil {
		return
	}
	_ = g.events.Publish(coordinator.Event{Type: eventType, MemoryID: memoryID, ProjectID: projectID, Timestamp: now})
}

// Link inserts a simple typed edge with no side effects (RELATED_TO,
// CONTRADICTS, BUILDS_ON, CONFIRMS, APPLIES_TO, DEPENDS_ON,
// ALTERNATIVE_TO).
func (g *Graph) Link(ctx context.Context, sourceID, targetID string, typ store.RelationshipType, now time.Time) error {
	if typ == store.RelSupersedes {
		return ccerrors.ValidationError("use Supersede for SUPERSEDES edges", nil)
	}
	return g.db.AddRelationship(ctx, sourceID, targetID, typ, now)
}

// Supersede inserts a SUPERSEDES(new→old) edge and closes the old memory's
// validity window:
//  1. Insert edge (new_id, old_id, SUPERSEDES, now).
//  2. old.valid_until := now, old.updated_at := now.
//  3. Publish memory:updated for both.
func (g *Graph) Supersede(ctx context.Context, newID, oldID string, now time.Time) error {
	if newID == oldID {
		return ccerrors.ValidationError("a memory cannot supersede itself", nil)
	}
	newMem, err := g.db.GetMemory(ctx, newID)
	if err != nil {
		return err
	}
	oldMem, err := g.db.GetMemory(ctx, oldID)
	if err != nil {
		return err
	}
	if err := g.db.SupersedeMemory(ctx, oldID, newID, now, now); err != nil {
		return err
	}
	g.publish("memory:updated", newMem.ID, newMem.ProjectID, now)
	g.publish("memory:updated", oldMem.ID, oldMem.ProjectID, now)
	return nil
}

// RelatedEdge is one edge of a getRelated result, with the opposite
// endpoint's direction resolved relative to the queried memory.
type RelatedEdge struct {
	OtherID   string
	Type      store.RelationshipType
	Outgoing  bool // true if the queried memory is the source
	CreatedAt time.Time
}

// GetRelated returns outgoing + incoming edges for id with the opposite
// endpoint resolved.
func (g *Graph) GetRelated(ctx context.Context, id string) ([]*RelatedEdge, error) {
	rels, err := g.db.RelatedMemories(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]*RelatedEdge, 0, len(rels))
	for _, r := range rels {
		e := &RelatedEdge{Type: r.Type, CreatedAt: r.CreatedAt}
		if r.SourceID == id {
			e.OtherID = r.TargetID
			e.Outgoing = true
		} else {
			e.OtherID = r.SourceID
			e.Outgoing = false
		}
		out = append(out, e)
	}
	return out, nil
}

// Traverse walks outgoing + incoming edges breadth-first up to
// MaxTraversalDepth hops, returning every memory id reached (excluding the
// start).
func (g *Graph) Traverse(ctx context.Context, startID string) ([]string, error) {
	visited := map[string]bool{startID: true}
	frontier := []string{startID}
	var reached []string

	for depth := 0; depth < MaxTraversalDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			edges, err := g.GetRelated(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if visited[e.OtherID] {
					continue
				}
				visited[e.OtherID] = true
				reached = append(reached, e.OtherID)
				next = append(next, e.OtherID)
			}
		}
		frontier = next
	}
	return reached, nil
}

// OutgoingCount returns the number of outgoing relationships for a memory,
// attached to search results.
func (g *Graph) OutgoingCount(ctx context.Context, id string) (int, error) {
	edges, err := g.GetRelated(ctx, id)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range edges {
		if e.Outgoing {
			n++
		}
	}
	return n, nil
}
