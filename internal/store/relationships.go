package store

import (
	"context"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// AddRelationship inserts a directed edge between two memories, ignoring
// duplicates of the same (source, target, type) triple.
func (d *DB) AddRelationship(ctx context.Context, sourceID, targetID string, typ RelationshipType, now time.Time) error {
	_, err := d.Execute(ctx,
		`INSERT OR IGNORE INTO memory_relationships (source_id, target_id, type, created_at) VALUES (?, ?, ?, ?)`,
		sourceID, targetID, string(typ), fmtTime(now))
	return err
}

// RelatedMemories returns every relationship with id at either end (one
// hop, outgoing and incoming). Callers needing multi-hop traversal walk
// this repeatedly, tracking visited IDs themselves.
func (d *DB) RelatedMemories(ctx context.Context, id string) ([]*Relationship, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, source_id, target_id, type, created_at FROM memory_relationships WHERE source_id = ? OR target_id = ?`,
		id, id)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		var r Relationship
		var created string
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &created); err != nil {
			return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// LinkSessionMemory records that a session created or reinforced a memory.
func (d *DB) LinkSessionMemory(ctx context.Context, sessionID, memoryID, usageType string, now time.Time) error {
	_, err := d.Execute(ctx,
		`INSERT OR IGNORE INTO session_memories (session_id, memory_id, usage_type, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, memoryID, usageType, fmtTime(now))
	return err
}

// DistinctSessionCount returns how many distinct sessions have linked to a
// memory — the signal the decay scheduler's promotion policy checks.
func (d *DB) DistinctSessionCount(ctx context.Context, memoryID string) (int, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT session_id) FROM session_memories WHERE memory_id = ?`, memoryID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	return n, nil
}

// PromoteToProjectTier upgrades a memory's tier.
func (d *DB) PromoteToProjectTier(ctx context.Context, memoryID string, now time.Time) error {
	_, err := d.Execute(ctx,
		`UPDATE memories SET tier = ?, updated_at = ? WHERE id = ? AND tier = ?`,
		string(TierProject), fmtTime(now), memoryID, string(TierSession))
	return err
}
