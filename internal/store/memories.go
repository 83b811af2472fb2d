package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// CreateMemory inserts a new memory row.
func (d *DB) CreateMemory(ctx context.Context, m *Memory) error {
	ctxJSON, tagsJSON, conceptsJSON, filesJSON, err := marshalMemoryJSON(m)
	if err != nil {
		return err
	}
	var memType any
	if m.MemoryType != nil {
		memType = string(*m.MemoryType)
	}
	_, err = d.Execute(ctx, `INSERT INTO memories (
		id, project_id, session_id, segment_id, content, summary, context, content_hash,
		sector, tier, memory_type, simhash, importance, salience, access_count, confidence,
		created_at, updated_at, last_accessed, valid_from, valid_until, deleted_at,
		tags, concepts, files
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.SessionID, m.SegmentID, m.Content, m.Summary, ctxJSON, m.ContentHash,
		string(m.Sector), string(m.Tier), memType, int64(m.Simhash), m.Importance, m.Salience, m.AccessCount, m.Confidence,
		fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt), fmtTime(m.LastAccessed), nullTime(m.ValidFrom), nullTime(m.ValidUntil), nullTime(m.DeletedAt),
		tagsJSON, conceptsJSON, filesJSON,
	)
	return err
}

// GetMemory returns a memory by id, including soft-deleted rows (callers
// check IsDeleted).
func (d *DB) GetMemory(ctx context.Context, id string) (*Memory, error) {
	row := d.conn.QueryRowContext(ctx, memorySelectCols+` FROM memories WHERE id = ?`, id)
	return scanMemoryRow(row)
}

// TouchMemory bumps access_count and last_accessed (recorded on every
// retrieval, per the reinforcement model).
func (d *DB) TouchMemory(ctx context.Context, id string, at time.Time) error {
	_, err := d.Execute(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
		fmtTime(at), id)
	return err
}

// UpdateSalience sets a memory's salience, clamped to [MinSalience,MaxSalience].
func (d *DB) UpdateSalience(ctx context.Context, id string, salience float64, now time.Time) error {
	if salience < MinSalience {
		salience = MinSalience
	}
	if salience > MaxSalience {
		salience = MaxSalience
	}
	_, err := d.Execute(ctx,
		`UPDATE memories SET salience = ?, updated_at = ? WHERE id = ?`,
		salience, fmtTime(now), id)
	return err
}

// SoftDeleteMemory marks a memory deleted without removing the row.
func (d *DB) SoftDeleteMemory(ctx context.Context, id string, at time.Time) error {
	_, err := d.Execute(ctx,
		`UPDATE memories SET deleted_at = ? WHERE id = ?`, fmtTime(at), id)
	return err
}

// RestoreMemory clears a memory's deleted_at.
func (d *DB) RestoreMemory(ctx context.Context, id string) error {
	_, err := d.Execute(ctx, `UPDATE memories SET deleted_at = NULL WHERE id = ?`, id)
	return err
}

// HardDeleteMemory removes a memory row outright. Foreign keys on
// memory_vectors, session_memories, and memory_relationships cascade.
func (d *DB) HardDeleteMemory(ctx context.Context, id string) error {
	_, err := d.Execute(ctx, `DELETE FROM memories WHERE id = ?`, id)
	return err
}

// SupersedeMemory closes the old memory's validity window at validUntil and
// links it to the new memory via a SUPERSEDES relationship, atomically.
func (d *DB) SupersedeMemory(ctx context.Context, oldID, newID string, validUntil, now time.Time) error {
	return d.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET valid_until = ?, updated_at = ? WHERE id = ?`,
			fmtTime(validUntil), fmtTime(now), oldID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO memory_relationships (source_id, target_id, type, created_at) VALUES (?, ?, ?, ?)`,
			newID, oldID, string(RelSupersedes), fmtTime(now))
		return err
	})
}

// UpdateMemoryFields persists the mutable fields of m — used by update()
// when content/summary/tags/files/memory_type/sector can all change in one
// call.
func (d *DB) UpdateMemoryFields(ctx context.Context, m *Memory) error {
	tagsJSON, err := json.Marshal(nonNilStrings(m.Tags))
	if err != nil {
		return ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	conceptsJSON, err := json.Marshal(nonNilStrings(m.Concepts))
	if err != nil {
		return ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	filesJSON, err := json.Marshal(nonNilStrings(m.Files))
	if err != nil {
		return ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	var memType any
	if m.MemoryType != nil {
		memType = string(*m.MemoryType)
	}
	_, err = d.Execute(ctx, `UPDATE memories SET
		content = ?, summary = ?, content_hash = ?, sector = ?, memory_type = ?,
		simhash = ?, tags = ?, concepts = ?, files = ?, updated_at = ?
		WHERE id = ?`,
		m.Content, m.Summary, m.ContentHash, string(m.Sector), memType,
		int64(m.Simhash), string(tagsJSON), string(conceptsJSON), string(filesJSON), fmtTime(m.UpdatedAt),
		m.ID)
	return err
}

// ListMemories returns memories matching filter, ordered by OrderBy
// (created_at when empty), ascending unless Descending is set: the
// default order is oldest first.
func (d *DB) ListMemories(ctx context.Context, f MemoryFilter) ([]*Memory, error) {
	var where []string
	var args []any

	where = append(where, "project_id = ?")
	args = append(args, f.ProjectID)

	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if !f.IncludeSuperseded {
		where = append(where, "(valid_until IS NULL OR valid_until > ?)")
		args = append(args, fmtTime(time.Now()))
	}
	if f.Sector != nil {
		where = append(where, "sector = ?")
		args = append(args, string(*f.Sector))
	}
	if f.Tier != nil {
		where = append(where, "tier = ?")
		args = append(args, string(*f.Tier))
	}
	if f.MemoryType != nil {
		where = append(where, "memory_type = ?")
		args = append(args, string(*f.MemoryType))
	}
	if f.MinSalience != nil {
		where = append(where, "salience >= ?")
		args = append(args, *f.MinSalience)
	}
	if f.SessionID != nil {
		where = append(where, "session_id = ?")
		args = append(args, *f.SessionID)
	}

	orderCol := "created_at"
	if f.OrderBy != "" {
		orderCol = f.OrderBy
	}
	dir := "DESC"
	if !f.Descending {
		dir = "ASC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := memorySelectCols + ` FROM memories WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + orderCol + ` ` + dir + ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListBySimhashPrefix returns recent, non-deleted memories in a project for
// near-duplicate comparison against a new candidate's simhash.
func (d *DB) ListBySimhashPrefix(ctx context.Context, projectID string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := d.conn.QueryContext(ctx,
		memorySelectCols+` FROM memories WHERE project_id = ? AND deleted_at IS NULL ORDER BY created_at DESC LIMIT ?`,
		projectID, limit)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMemoriesForDecay returns a page of non-deleted memories across every
// project, ordered by id for stable keyset pagination — the decay
// scheduler scans the whole store, not one project at a time. Pass the
// last id seen as afterID ("" for the first page).
func (d *DB) ListMemoriesForDecay(ctx context.Context, afterID string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := d.conn.QueryContext(ctx,
		memorySelectCols+` FROM memories WHERE deleted_at IS NULL AND id > ? ORDER BY id ASC LIMIT ?`,
		afterID, limit)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const memorySelectCols = `SELECT
	id, project_id, session_id, segment_id, content, summary, context, content_hash,
	sector, tier, memory_type, simhash, importance, salience, access_count, confidence,
	created_at, updated_at, last_accessed, valid_from, valid_until, deleted_at,
	tags, concepts, files`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(row *sql.Row) (*Memory, error) {
	m, err := scanMemoryCommon(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ccerrors.NotFound(ccerrors.ErrCodeMemoryNotFound, "memory", "")
		}
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	return m, nil
}

func scanMemoryRows(rows *sql.Rows) (*Memory, error) {
	m, err := scanMemoryCommon(rows)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	return m, nil
}

func scanMemoryCommon(s rowScanner) (*Memory, error) {
	var m Memory
	var sessionID, segmentID, summary sql.NullString
	var memType sql.NullString
	var createdAt, updatedAt, lastAccessed string
	var validFrom, validUntil, deletedAt sql.NullString
	var ctxJSON, tagsJSON, conceptsJSON, filesJSON string
	var simhash int64

	if err := s.Scan(
		&m.ID, &m.ProjectID, &sessionID, &segmentID, &m.Content, &summary, &ctxJSON, &m.ContentHash,
		&m.Sector, &m.Tier, &memType, &simhash, &m.Importance, &m.Salience, &m.AccessCount, &m.Confidence,
		&createdAt, &updatedAt, &lastAccessed, &validFrom, &validUntil, &deletedAt,
		&tagsJSON, &conceptsJSON, &filesJSON,
	); err != nil {
		return nil, err
	}

	if sessionID.Valid {
		m.SessionID = &sessionID.String
	}
	if segmentID.Valid {
		m.SegmentID = &segmentID.String
	}
	if summary.Valid {
		m.Summary = &summary.String
	}
	if memType.Valid {
		t := MemoryType(memType.String)
		m.MemoryType = &t
	}
	m.Simhash = uint64(simhash)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	m.LastAccessed, _ = time.Parse(time.RFC3339Nano, lastAccessed)
	if validFrom.Valid {
		t, _ := time.Parse(time.RFC3339Nano, validFrom.String)
		m.ValidFrom = &t
	}
	if validUntil.Valid {
		t, _ := time.Parse(time.RFC3339Nano, validUntil.String)
		m.ValidUntil = &t
	}
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, deletedAt.String)
		m.DeletedAt = &t
		m.IsDeleted = true
	}
	if ctxJSON != "" {
		_ = json.Unmarshal([]byte(ctxJSON), &m.Context)
	}
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	_ = json.Unmarshal([]byte(conceptsJSON), &m.Concepts)
	_ = json.Unmarshal([]byte(filesJSON), &m.Files)

	return &m, nil
}

func marshalMemoryJSON(m *Memory) (ctxJSON, tagsJSON, conceptsJSON, filesJSON string, err error) {
	c, err := json.Marshal(m.Context)
	if err != nil {
		return "", "", "", "", ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	tg, err := json.Marshal(nonNilStrings(m.Tags))
	if err != nil {
		return "", "", "", "", ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	cc, err := json.Marshal(nonNilStrings(m.Concepts))
	if err != nil {
		return "", "", "", "", ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	fl, err := json.Marshal(nonNilStrings(m.Files))
	if err != nil {
		return "", "", "", "", ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	return string(c), string(tg), string(cc), string(fl), nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
