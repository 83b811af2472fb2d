// Package session manages the lifecycle of editor sessions: opening,
// closing, and auto-closing sessions that have gone stale.
package session

import (
	"context"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/store"
)

// GraceWindow is how long a session may sit with no recorded activity
// before it is considered stale and auto-closed.
const GraceWindow = 4 * time.Hour

// AutoCloseDuration is the nominal duration stamped on an auto-closed
// session: ended_at = started_at + AutoCloseDuration.
const AutoCloseDuration = 1 * time.Second

// Manager opens, ends, and sweeps sessions.
type Manager struct {
	db *store.DB
}

// New wraps a DB as a session Manager.
func New(db *store.DB) *Manager {
	return &Manager{db: db}
}

// Open starts a new session for a project. The id is supplied by the
// caller (the editor), not generated here.
func (m *Manager) Open(ctx context.Context, id, projectID string, now time.Time) (*store.Session, error) {
	if id == "" {
		return nil, ccerrors.ValidationError("session id must not be empty", nil)
	}
	s := &store.Session{
		ID:        id,
		ProjectID: projectID,
		StartedAt: now,
		Context:   map[string]string{},
	}
	if err := m.db.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// End closes a session explicitly, stamping ended_at and an optional
// summary.
func (m *Manager) End(ctx context.Context, id string, now time.Time, summary *string) error {
	s, err := m.db.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if s.IsEnded() {
		return nil
	}
	return m.db.EndSession(ctx, id, now, summary)
}

// LastActivity returns the most recent activity timestamp recorded for a
// session: the open accumulator's updated_at if one exists, otherwise the
// session's started_at.
func (m *Manager) LastActivity(ctx context.Context, s *store.Session) (time.Time, error) {
	acc, err := m.db.GetAccumulator(ctx, s.ID)
	if err != nil {
		return time.Time{}, err
	}
	if acc != nil && acc.UpdatedAt.After(s.StartedAt) {
		return acc.UpdatedAt, nil
	}
	return s.StartedAt, nil
}

// SweepResult reports what one auto-close sweep did.
type SweepResult struct {
	Closed []string
}

// SweepStaleSessions auto-closes every open session in a project whose
// last activity is older than GraceWindow. Auto-closed sessions are
// stamped with ended_at = started_at + AutoCloseDuration, not the actual
// sweep time, to mark them distinctly from explicitly-ended sessions.
func (m *Manager) SweepStaleSessions(ctx context.Context, projectID string, now time.Time) (*SweepResult, error) {
	open, err := m.db.OpenSessionsForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	res := &SweepResult{}
	for _, s := range open {
		last, err := m.LastActivity(ctx, s)
		if err != nil {
			return nil, err
		}
		if now.Sub(last) < GraceWindow {
			continue
		}
		endedAt := s.StartedAt.Add(AutoCloseDuration)
		if err := m.db.EndSession(ctx, s.ID, endedAt, nil); err != nil {
			return nil, err
		}
		res.Closed = append(res.Closed, s.ID)
	}
	return res, nil
}
