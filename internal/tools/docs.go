package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ccmemory/ccmemory/internal/docs"
	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/search"
)

// docsSearchParams is docs_search's input (§6.2).
type docsSearchParams struct {
	Query     string `json:"query"`
	ProjectID string `json:"projectId"`
	Limit     int    `json:"limit,omitempty"`
}

type chunkHit struct {
	ChunkID    string  `json:"chunkId"`
	DocumentID string  `json:"documentId"`
	Content    string  `json:"content"`
	SourcePath *string `json:"sourcePath,omitempty"`
	Title      *string `json:"title,omitempty"`
	Language   *string `json:"language,omitempty"`
	Score      float64 `json:"score"`
}

// DocsSearch runs hybrid search over non-code document chunks.
func (d *Deps) DocsSearch(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p docsSearchParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	hits, err := d.Chunks.Search(ctx, search.ChunkOptions{
		Query:     p.Query,
		ProjectID: p.ProjectID,
		OnlyCode:  false,
		Limit:     p.Limit,
	})
	if err != nil {
		return result(nil, err)
	}
	return result(toChunkHits(hits), nil)
}

// docsIngestParams is docs_ingest's input. Content is required; Path or
// URL, when set alongside it, records where the content came from (URL
// takes precedence over Path).
type docsIngestParams struct {
	ProjectID  string `json:"projectId"`
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`
	Content    string `json:"content,omitempty"`
	Title      string `json:"title,omitempty"`
	SourceType string `json:"sourceType,omitempty"`
}

// DocsIngest ingests raw content, a file, or a URL into the document
// store. Ingest never performs file or network I/O itself (§4.8); when
// Path or URL is set without Content, the caller is expected to have
// already read the bytes and passed them as Content.
func (d *Deps) DocsIngest(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p docsIngestParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	if p.Content == "" {
		return result(nil, ccerrors.ValidationError("docs_ingest requires content (read by the caller)", nil))
	}

	kind := docs.SourceRaw
	switch {
	case p.URL != "":
		kind = docs.SourceURL
	case p.Path != "":
		kind = docs.SourceFile
	}

	res, err := d.Docs.Ingest(ctx, docs.IngestParams{
		ProjectID:  p.ProjectID,
		Kind:       kind,
		SourcePath: p.Path,
		SourceURL:  p.URL,
		Content:    p.Content,
	}, time.Now())
	return result(res, err)
}

func toChunkHits(hits []*search.ChunkResult) []*chunkHit {
	out := make([]*chunkHit, len(hits))
	for i, h := range hits {
		out[i] = &chunkHit{
			ChunkID:    h.Chunk.ID,
			DocumentID: h.Chunk.DocumentID,
			Content:    h.Chunk.Content,
			SourcePath: h.SourcePath,
			Title:      h.Title,
			Language:   h.Language,
			Score:      h.Score,
		}
	}
	return out
}
