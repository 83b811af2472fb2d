package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// UpsertIndexedFile records (or refreshes) the per-project scan state for a
// file: its content checksum and the gitignore-ruleset hash in effect when
// it was last indexed, so a later scan can skip files whose checksum and
// ruleset are both unchanged (§4.7).
func (d *DB) UpsertIndexedFile(ctx context.Context, f *IndexedFile) error {
	_, err := d.Execute(ctx, `INSERT INTO indexed_files (
		project_id, path, checksum, last_indexed_at, language, gitignore_hash
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(project_id, path) DO UPDATE SET
		checksum = excluded.checksum,
		last_indexed_at = excluded.last_indexed_at,
		language = excluded.language,
		gitignore_hash = excluded.gitignore_hash`,
		f.ProjectID, f.Path, f.Checksum, fmtTime(f.LastIndexedAt), f.Language, f.GitignoreHash)
	return err
}

// GetIndexedFile returns the scan-state row for one file, or nil if the
// file has never been indexed.
func (d *DB) GetIndexedFile(ctx context.Context, projectID, path string) (*IndexedFile, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT project_id, path, checksum, last_indexed_at, language, gitignore_hash
		FROM indexed_files WHERE project_id = ? AND path = ?`, projectID, path)
	f, err := scanIndexedFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

// ListIndexedFiles returns every indexed-file row for a project, used by
// cleanupDeletedFiles to test each path's continued existence.
func (d *DB) ListIndexedFiles(ctx context.Context, projectID string) ([]*IndexedFile, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT project_id, path, checksum, last_indexed_at, language, gitignore_hash
		FROM indexed_files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []*IndexedFile
	for rows.Next() {
		var f IndexedFile
		var indexedAt string
		if err := rows.Scan(&f.ProjectID, &f.Path, &f.Checksum, &indexedAt, &f.Language, &f.GitignoreHash); err != nil {
			return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
		}
		f.LastIndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
		out = append(out, &f)
	}
	return out, rows.Err()
}

// DeleteIndexedFile removes one file's scan-state row. Returns whether a
// row was actually removed.
func (d *DB) DeleteIndexedFile(ctx context.Context, projectID, path string) (bool, error) {
	res, err := d.Execute(ctx, `DELETE FROM indexed_files WHERE project_id = ? AND path = ?`, projectID, path)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanIndexedFile(row *sql.Row) (*IndexedFile, error) {
	var f IndexedFile
	var indexedAt string
	if err := row.Scan(&f.ProjectID, &f.Path, &f.Checksum, &indexedAt, &f.Language, &f.GitignoreHash); err != nil {
		return nil, err
	}
	f.LastIndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	return &f, nil
}

// UpsertCodeIndexState refreshes a project's indexing roll-up.
func (d *DB) UpsertCodeIndexState(ctx context.Context, s *CodeIndexState) error {
	errsJSON, err := json.Marshal(nonNilStrings(s.Errors))
	if err != nil {
		return ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	_, err = d.Execute(ctx, `INSERT INTO code_index_state (project_id, last_indexed_at, indexed_files, errors)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			last_indexed_at = excluded.last_indexed_at,
			indexed_files = excluded.indexed_files,
			errors = excluded.errors`,
		s.ProjectID, fmtTime(s.LastIndexedAt), s.IndexedFiles, string(errsJSON))
	return err
}

// GetCodeIndexState returns a project's indexing roll-up, or nil if the
// project has never been indexed.
func (d *DB) GetCodeIndexState(ctx context.Context, projectID string) (*CodeIndexState, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT project_id, last_indexed_at, indexed_files, errors FROM code_index_state WHERE project_id = ?`, projectID)
	var s CodeIndexState
	var indexedAt, errsJSON string
	if err := row.Scan(&s.ProjectID, &indexedAt, &s.IndexedFiles, &errsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	s.LastIndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	_ = json.Unmarshal([]byte(errsJSON), &s.Errors)
	return &s, nil
}

// DeleteDocumentCascade removes a document, its chunks, their vectors, and
// (for code documents) the indexed_files row, atomically. Returns whether
// a document row was removed.
func (d *DB) DeleteDocumentCascade(ctx context.Context, projectID, documentID, path string) (bool, error) {
	var removed bool
	err := d.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND project_id = ?`, documentID, projectID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		removed = n > 0
		if path != "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM indexed_files WHERE project_id = ? AND path = ?`, projectID, path); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// DocumentByPath returns the document ingested from a given project-
// relative source path, or nil if none exists.
func (d *DB) DocumentByPath(ctx context.Context, projectID, path string) (*Document, error) {
	row := d.conn.QueryRowContext(ctx, documentSelectCols+` FROM documents WHERE project_id = ? AND source_path = ?`,
		projectID, path)
	doc, err := scanDocument(row)
	if err != nil {
		if ccerrors.GetCode(err) == ccerrors.ErrCodeDocumentNotFound {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}
