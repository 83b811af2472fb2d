package store

import (
	"context"
	"strings"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// SearchMemoriesFTS runs a keyword query against memories_fts and returns
// hits ranked by SQLite's bm25() ranking function (lower is better; the
// caller normalizes before fusing with vector scores).
func (d *DB) SearchMemoriesFTS(ctx context.Context, projectID, query string, limit int) ([]*KeywordResult, error) {
	if limit <= 0 {
		limit = 50
	}
	match := toFTSQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := d.conn.QueryContext(ctx, `SELECT
		m.id, bm25(memories_fts) AS rank, snippet(memories_fts, 1, '[', ']', '...', 8)
	FROM memories_fts
	JOIN memories m ON m.id = memories_fts.id
	WHERE memories_fts MATCH ? AND m.project_id = ? AND m.deleted_at IS NULL
	ORDER BY rank LIMIT ?`, match, projectID, limit)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeSearchFailed, err)
	}
	defer rows.Close()

	var out []*KeywordResult
	for rows.Next() {
		var r KeywordResult
		if err := rows.Scan(&r.OwnerID, &r.Rank, &r.Snippet); err != nil {
			return nil, ccerrors.Wrap(ccerrors.ErrCodeSearchFailed, err)
		}
		r.MatchedTerms = strings.Fields(query)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SearchChunksFTS runs the same keyword search over document chunk content.
func (d *DB) SearchChunksFTS(ctx context.Context, documentProjectIDs []string, query string, limit int) ([]*KeywordResult, error) {
	if limit <= 0 {
		limit = 50
	}
	match := toFTSQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := d.conn.QueryContext(ctx, `SELECT
		c.id, bm25(chunks_fts) AS rank, snippet(chunks_fts, 1, '[', ']', '...', 8)
	FROM chunks_fts
	JOIN document_chunks c ON c.id = chunks_fts.id
	JOIN documents doc ON doc.id = c.document_id
	WHERE chunks_fts MATCH ? AND doc.project_id IN (`+placeholders(len(documentProjectIDs))+`)
	ORDER BY rank LIMIT ?`, append(append([]any{match}, toAnySlice(documentProjectIDs)...), limit)...)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeSearchFailed, err)
	}
	defer rows.Close()

	var out []*KeywordResult
	for rows.Next() {
		var r KeywordResult
		if err := rows.Scan(&r.OwnerID, &r.Rank, &r.Snippet); err != nil {
			return nil, ccerrors.Wrap(ccerrors.ErrCodeSearchFailed, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// toFTSQuery builds a prefix-matched AND query from whitespace-separated
// terms, escaping FTS5 special characters. Linguistic stemming beyond
// porter tokenization and this prefix match is explicitly out of scope.
func toFTSQuery(query string) string {
	fields := strings.Fields(query)
	var terms []string
	for _, f := range fields {
		f = strings.Map(func(r rune) rune {
			if r == '"' || r == '*' {
				return -1
			}
			return r
		}, f)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"*`)
	}
	return strings.Join(terms, " AND ")
}

func placeholders(n int) string {
	if n <= 0 {
		return "''"
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
