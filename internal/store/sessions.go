package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// CreateSession inserts a new open session.
func (d *DB) CreateSession(ctx context.Context, s *Session) error {
	ctxJSON, err := json.Marshal(s.Context)
	if err != nil {
		return ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	_, err = d.Execute(ctx,
		`INSERT INTO sessions (id, project_id, started_at, ended_at, summary, context) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, s.StartedAt.UTC().Format(time.RFC3339Nano), nullTime(s.EndedAt), s.Summary, string(ctxJSON))
	return err
}

// EndSession closes a session, stamping ended_at and an optional summary.
func (d *DB) EndSession(ctx context.Context, id string, endedAt time.Time, summary *string) error {
	_, err := d.Execute(ctx,
		`UPDATE sessions SET ended_at = ?, summary = COALESCE(?, summary) WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano), summary, id)
	return err
}

// GetSession returns a session by id.
func (d *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, project_id, started_at, ended_at, summary, context FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// OpenSessionsForProject returns sessions with ended_at IS NULL, used by the
// coordinator to find sessions eligible for the grace-window auto-close.
func (d *DB) OpenSessionsForProject(ctx context.Context, projectID string) ([]*Session, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, project_id, started_at, ended_at, summary, context FROM sessions WHERE project_id = ? AND ended_at IS NULL`,
		projectID)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var started string
	var ended sql.NullString
	var ctxJSON string
	if err := row.Scan(&s.ID, &s.ProjectID, &started, &ended, &s.Summary, &ctxJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, ccerrors.NotFound(ccerrors.ErrCodeSessionNotFound, "session", "")
		}
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	return finishSession(&s, started, ended, ctxJSON)
}

func scanSessionRows(rows *sql.Rows) (*Session, error) {
	var s Session
	var started string
	var ended sql.NullString
	var ctxJSON string
	if err := rows.Scan(&s.ID, &s.ProjectID, &started, &ended, &s.Summary, &ctxJSON); err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	return finishSession(&s, started, ended, ctxJSON)
}

func finishSession(s *Session, started string, ended sql.NullString, ctxJSON string) (*Session, error) {
	s.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if ended.Valid {
		t, err := time.Parse(time.RFC3339Nano, ended.String)
		if err == nil {
			s.EndedAt = &t
		}
	}
	if ctxJSON != "" {
		_ = json.Unmarshal([]byte(ctxJSON), &s.Context)
	}
	return s, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
