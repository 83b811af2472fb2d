package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// CreateDocument inserts a new ingested document.
func (d *DB) CreateDocument(ctx context.Context, doc *Document) error {
	_, err := d.Execute(ctx, `INSERT INTO documents (
		id, project_id, source_path, source_url, source_type, title, full_content,
		checksum, is_code, language, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.ProjectID, doc.SourcePath, doc.SourceURL, string(doc.SourceType), doc.Title, doc.FullContent,
		doc.Checksum, boolToInt(doc.IsCode), doc.Language, fmtTime(doc.CreatedAt), fmtTime(doc.UpdatedAt))
	return err
}

// GetDocumentByChecksum returns a document already ingested with this
// checksum, used to skip re-ingesting unchanged sources.
func (d *DB) GetDocumentByChecksum(ctx context.Context, projectID, checksum string) (*Document, error) {
	row := d.conn.QueryRowContext(ctx, documentSelectCols+` FROM documents WHERE project_id = ? AND checksum = ?`,
		projectID, checksum)
	return scanDocument(row)
}

// GetDocument returns a document by id.
func (d *DB) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := d.conn.QueryRowContext(ctx, documentSelectCols+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

const documentSelectCols = `SELECT
	id, project_id, source_path, source_url, source_type, title, full_content,
	checksum, is_code, language, created_at, updated_at`

func scanDocument(row *sql.Row) (*Document, error) {
	var doc Document
	var sourcePath, sourceURL, title, language sql.NullString
	var isCode int
	var created, updated string
	if err := row.Scan(&doc.ID, &doc.ProjectID, &sourcePath, &sourceURL, &doc.SourceType, &title, &doc.FullContent,
		&doc.Checksum, &isCode, &language, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, ccerrors.NotFound(ccerrors.ErrCodeDocumentNotFound, "document", "")
		}
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	if sourcePath.Valid {
		doc.SourcePath = &sourcePath.String
	}
	if sourceURL.Valid {
		doc.SourceURL = &sourceURL.String
	}
	if title.Valid {
		doc.Title = &title.String
	}
	if language.Valid {
		doc.Language = &language.String
	}
	doc.IsCode = isCode != 0
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &doc, nil
}

// UpdateDocument persists a re-ingested document's content in place: the
// document id and source identity are unchanged, only the content,
// checksum, title, and timestamp move (§4.8 re-ingest path).
func (d *DB) UpdateDocument(ctx context.Context, doc *Document) error {
	_, err := d.Execute(ctx, `UPDATE documents SET
		title = ?, full_content = ?, checksum = ?, is_code = ?, language = ?, updated_at = ?
		WHERE id = ?`,
		doc.Title, doc.FullContent, doc.Checksum, boolToInt(doc.IsCode), doc.Language, fmtTime(doc.UpdatedAt), doc.ID)
	return err
}

// CreateDocumentChunks inserts chunks for a document in one transaction.
func (d *DB) CreateDocumentChunks(ctx context.Context, chunks []*DocumentChunk) error {
	return d.Transaction(ctx, func(tx *sql.Tx) error {
		for _, c := range chunks {
			symJSON, err := json.Marshal(nonNilStrings(c.Symbols))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO document_chunks (
				id, document_id, chunk_index, content, start_offset, end_offset,
				tokens_estimate, start_line, end_line, symbols, language
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.StartOffset, c.EndOffset,
				c.TokensEstimate, c.StartLine, c.EndLine, string(symJSON), c.Language); err != nil {
				return err
			}
		}
		return nil
	})
}

// ChunksForDocument returns a document's chunks ordered by position.
func (d *DB) ChunksForDocument(ctx context.Context, documentID string) ([]*DocumentChunk, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT
		id, document_id, chunk_index, content, start_offset, end_offset,
		tokens_estimate, start_line, end_line, symbols, language
	FROM document_chunks WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []*DocumentChunk
	for rows.Next() {
		var c DocumentChunk
		var symJSON string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.StartOffset, &c.EndOffset,
			&c.TokensEstimate, &c.StartLine, &c.EndLine, &symJSON, &c.Language); err != nil {
			return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
		}
		_ = json.Unmarshal([]byte(symJSON), &c.Symbols)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ChunkWithDocument is a document_chunks row joined with its parent
// document's project/code/language metadata — what docs_search and
// code_search need to filter and render hits without a second round
// trip per chunk.
type ChunkWithDocument struct {
	Chunk      *DocumentChunk
	ProjectID  string
	IsCode     bool
	Language   *string
	SourcePath *string
	Title      *string
}

// ChunksByIDs loads chunks (and their parent document's metadata) for a
// set of chunk ids, the shape vector search and FTS search both return.
func (d *DB) ChunksByIDs(ctx context.Context, ids []string) ([]*ChunkWithDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := d.conn.QueryContext(ctx, `SELECT
		c.id, c.document_id, c.chunk_index, c.content, c.start_offset, c.end_offset,
		c.tokens_estimate, c.start_line, c.end_line, c.symbols, c.language,
		doc.project_id, doc.is_code, doc.language, doc.source_path, doc.title
	FROM document_chunks c JOIN documents doc ON doc.id = c.document_id
	WHERE c.id IN (`+placeholders(len(ids))+`)`, toAnySlice(ids)...)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []*ChunkWithDocument
	for rows.Next() {
		var c DocumentChunk
		var symJSON string
		var projectID string
		var isCode int
		var docLanguage, sourcePath, title sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.StartOffset, &c.EndOffset,
			&c.TokensEstimate, &c.StartLine, &c.EndLine, &symJSON, &c.Language,
			&projectID, &isCode, &docLanguage, &sourcePath, &title); err != nil {
			return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
		}
		_ = json.Unmarshal([]byte(symJSON), &c.Symbols)
		cwd := &ChunkWithDocument{Chunk: &c, ProjectID: projectID, IsCode: isCode != 0}
		if docLanguage.Valid {
			cwd.Language = &docLanguage.String
		}
		if sourcePath.Valid {
			cwd.SourcePath = &sourcePath.String
		}
		if title.Valid {
			cwd.Title = &title.String
		}
		out = append(out, cwd)
	}
	return out, rows.Err()
}

// AllChunkIDs returns every document_chunks id, the source-of-truth set
// the index consistency sweep compares against the document vector
// store's id set (SPEC_FULL §3).
func (d *DB) AllChunkIDs(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT id FROM document_chunks`)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
