package store

import (
	"context"
	"database/sql"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// UpsertProject inserts a project or returns the existing row for path,
// updating its name and updated_at if it differs.
func (d *DB) UpsertProject(ctx context.Context, id, path, name string, now time.Time) (*Project, error) {
	existing, err := d.GetProjectByPath(ctx, path)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if existing != nil {
		if existing.Name != name {
			if _, err := d.Execute(ctx,
				`UPDATE projects SET name = ?, updated_at = ? WHERE id = ?`,
				name, now.UTC().Format(time.RFC3339Nano), existing.ID); err != nil {
				return nil, err
			}
			existing.Name = name
			existing.UpdatedAt = now
		}
		return existing, nil
	}

	ts := now.UTC().Format(time.RFC3339Nano)
	if _, err := d.Execute(ctx,
		`INSERT INTO projects (id, path, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, path, name, ts, ts); err != nil {
		return nil, err
	}
	return &Project{ID: id, Path: path, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetProjectByPath returns the project registered at path, or a
// ErrCodeProjectNotFound error if none exists.
func (d *DB) GetProjectByPath(ctx context.Context, path string) (*Project, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, path, name, created_at, updated_at FROM projects WHERE path = ?`, path)
	return scanProject(row)
}

// GetProject returns a project by id.
func (d *DB) GetProject(ctx context.Context, id string) (*Project, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, path, name, created_at, updated_at FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var created, updated string
	if err := row.Scan(&p.ID, &p.Path, &p.Name, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, ccerrors.NotFound(ccerrors.ErrCodeProjectNotFound, "project", "")
		}
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &p, nil
}

func isNotFound(err error) bool {
	ce, ok := err.(*ccerrors.CCError)
	if !ok {
		return false
	}
	switch ce.Code {
	case ccerrors.ErrCodeProjectNotFound, ccerrors.ErrCodeSessionNotFound,
		ccerrors.ErrCodeMemoryNotFound, ccerrors.ErrCodeDocumentNotFound:
		return true
	}
	return false
}
