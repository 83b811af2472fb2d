package memory

import (
	"context"
	"time"

	"github.com/ccmemory/ccmemory/internal/store"
)

// Get returns a memory by id, including soft-deleted rows.
func (s *Store) Get(ctx context.Context, id string) (*store.Memory, error) {
	return s.db.GetMemory(ctx, id)
}

// UpdatePatch are the fields update() may change; nil fields are left
// unmodified.
type UpdatePatch struct {
	Content    *string
	Summary    *string
	Tags       []string
	Files      []string
	MemoryType *store.MemoryType
}

// Update recomputes content_hash, simhash, and concepts when content
// changes; always bumps updated_at (§4.3).
func (s *Store) Update(ctx context.Context, id string, patch UpdatePatch, now time.Time) (*store.Memory, error) {
	m, err := s.db.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil && *patch.Content != m.Content {
		m.Content = *patch.Content
		m.ContentHash = ContentHash(m.Content)
		m.Simhash = Simhash(m.Content)
		m.Concepts = ExtractConcepts(m.Content)
	}
	if patch.Summary != nil {
		m.Summary = patch.Summary
	}
	if patch.Tags != nil {
		m.Tags = patch.Tags
	}
	if patch.Files != nil {
		m.Files = patch.Files
	}
	if patch.MemoryType != nil {
		m.MemoryType = patch.MemoryType
		if sector, ok := store.SectorForType(*patch.MemoryType); ok {
			m.Sector = sector
		}
	}
	m.UpdatedAt = now

	if err := s.db.UpdateMemoryFields(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes a memory. Soft delete (hard=false, the default) sets
// is_deleted=true and deleted_at=now; hard delete removes the row and
// lets the vectors/session_memories/relationships foreign keys cascade
// (§4.3 delete(id, hard=false)).
func (s *Store) Delete(ctx context.Context, id string, hard bool, now time.Time) error {
	m, err := s.db.GetMemory(ctx, id)
	if err != nil {
		return err
	}
	if hard {
		if err := s.db.HardDeleteMemory(ctx, id); err != nil {
			return err
		}
	} else {
		if err := s.db.SoftDeleteMemory(ctx, id, now); err != nil {
			return err
		}
	}
	s.publish("memory:deleted", id, m.ProjectID, now)
	return nil
}

// Restore clears a soft-deleted memory's deleted_at.
func (s *Store) Restore(ctx context.Context, id string) error {
	return s.db.RestoreMemory(ctx, id)
}

// List applies a MemoryFilter; defaults exclude deleted and superseded
// memories, ordered by created_at ascending unless Descending is set.
func (s *Store) List(ctx context.Context, f store.MemoryFilter) ([]*store.Memory, error) {
	return s.db.ListMemories(ctx, f)
}

// GetBySession returns distinct memories linked to a session, newest link
// first (§4.3 getBySession).
func (s *Store) GetBySession(ctx context.Context, sessionID string) ([]*store.Memory, error) {
	sid := sessionID
	return s.db.ListMemories(ctx, store.MemoryFilter{SessionID: &sid, OrderBy: "created_at", Descending: true, Limit: 1000})
}
// Supersede is implemented on relationship.Graph, which also owns the
// SUPERSEDES edge and the memory:updated events for both sides (§4.4).
