package memory

import (
	"context"
	"time"

	"github.com/ccmemory/ccmemory/internal/store"
)

// Reinforce applies diminishing-returns growth toward 1.0, bumps
// last_accessed/access_count, and returns the updated memory (§4.3).
//
// new_salience = min(1.0, salience + amount × (1.0 − salience))
func (s *Store) Reinforce(ctx context.Context, id string, amount float64, now time.Time) (*store.Memory, error) {
	m, err := s.db.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.reinforceLocked(ctx, m, amount, now); err != nil {
		return nil, err
	}
	s.publish("memory:reinforced", id, m.ProjectID, now)
	return s.db.GetMemory(ctx, id)
}

func (s *Store) reinforceLocked(ctx context.Context, m *store.Memory, amount float64, now time.Time) error {
	newSalience := m.Salience + amount*(store.MaxSalience-m.Salience)
	if newSalience > store.MaxSalience {
		newSalience = store.MaxSalience
	}
	if err := s.db.UpdateSalience(ctx, m.ID, newSalience, now); err != nil {
		return err
	}
	return s.db.TouchMemory(ctx, m.ID, now)
}

// Deemphasize lowers salience by a flat amount, floored at MinSalience.
// Does not touch access_count (§4.3).
//
// new_salience = max(0.05, salience − amount)
func (s *Store) Deemphasize(ctx context.Context, id string, amount float64, now time.Time) (*store.Memory, error) {
	m, err := s.db.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	newSalience := m.Salience - amount
	if newSalience < store.MinSalience {
		newSalience = store.MinSalience
	}
	if err := s.db.UpdateSalience(ctx, id, newSalience, now); err != nil {
		return nil, err
	}
	return s.db.GetMemory(ctx, id)
}
