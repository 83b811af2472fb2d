package store

import (
	"context"
	"database/sql"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// GetConfigValue returns a persisted config override, and false if unset.
// Used for values set at runtime (e.g. the active embedding model id) that
// must survive process restarts without round-tripping through the YAML
// config file.
func (d *DB) GetConfigValue(ctx context.Context, key string) (string, bool, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	return v, true, nil
}

// SetConfigValue upserts a persisted config override.
func (d *DB) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := d.Execute(ctx,
		`INSERT INTO config (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// RegisterEmbeddingModel inserts or updates a model's dimensions, and
// atomically makes it the sole active model when makeActive is true — the
// single-active-model registration the embedding gateway relies on.
func (d *DB) RegisterEmbeddingModel(ctx context.Context, id, provider, model string, dims int, makeActive bool) error {
	return d.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO embedding_models (id, provider, model, dimensions, is_active) VALUES (?, ?, ?, ?, 0)
			 ON CONFLICT(id) DO UPDATE SET dimensions = excluded.dimensions`,
			id, provider, model, dims); err != nil {
			return err
		}
		if !makeActive {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE embedding_models SET is_active = 0`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE embedding_models SET is_active = 1 WHERE id = ?`, id)
		return err
	})
}

// ActiveEmbeddingModel returns the currently active model, if any.
func (d *DB) ActiveEmbeddingModel(ctx context.Context) (*EmbeddingModel, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, provider, model, dimensions, is_active FROM embedding_models WHERE is_active = 1 LIMIT 1`)
	var m EmbeddingModel
	var active int
	if err := row.Scan(&m.ID, &m.Provider, &m.Model, &m.Dimensions, &active); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	m.IsActive = active != 0
	return &m, nil
}

// UpsertPendingVector records a memory or chunk whose embedding could not be
// computed because no provider was reachable (§3 pending-vector backfill).
func (d *DB) UpsertPendingVector(ctx context.Context, ownerID, ownerKind, projectID, content string, now string) error {
	_, err := d.Execute(ctx, `INSERT INTO pending_vectors (owner_id, owner_kind, project_id, content, created_at, attempts)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(owner_id) DO UPDATE SET content = excluded.content`,
		ownerID, ownerKind, projectID, content, now)
	return err
}

// PendingVector is one row awaiting a backfilled embedding.
type PendingVector struct {
	OwnerID   string
	OwnerKind string
	ProjectID string
	Content   string
	Attempts  int
}

// ListPendingVectors returns rows the decay scheduler should retry.
func (d *DB) ListPendingVectors(ctx context.Context, limit int) ([]*PendingVector, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT owner_id, owner_kind, project_id, content, attempts FROM pending_vectors ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []*PendingVector
	for rows.Next() {
		var p PendingVector
		if err := rows.Scan(&p.OwnerID, &p.OwnerKind, &p.ProjectID, &p.Content, &p.Attempts); err != nil {
			return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ClearPendingVector removes a row once its embedding has been backfilled.
func (d *DB) ClearPendingVector(ctx context.Context, ownerID string) error {
	_, err := d.Execute(ctx, `DELETE FROM pending_vectors WHERE owner_id = ?`, ownerID)
	return err
}

// BumpPendingVectorAttempt increments the retry counter after a failed
// backfill attempt.
func (d *DB) BumpPendingVectorAttempt(ctx context.Context, ownerID string) error {
	_, err := d.Execute(ctx, `UPDATE pending_vectors SET attempts = attempts + 1 WHERE owner_id = ?`, ownerID)
	return err
}
