// Package docs implements the document ingester: checksum-deduped
// ingestion of raw text, files, and URLs into the document/chunk/vector
// tables the search engine's docs_search tool queries (§4.8).
package docs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ccmemory/ccmemory/internal/embed"
	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/store"
)

// TitleMaxChars bounds the first-line fallback title (§4.8).
const TitleMaxChars = 100

// Ingester ingests raw content, files, or URLs into Documents, chunking
// and embedding them the way internal/index does for code.
type Ingester struct {
	db       *store.DB
	vectors  store.VectorStore
	embedder embed.Embedder
	chunker  *Chunker
}

// New wraps a DB (and optional vector store/embedder) as an Ingester.
func New(db *store.DB, vectors store.VectorStore, embedder embed.Embedder) *Ingester {
	return &Ingester{db: db, vectors: vectors, embedder: embedder, chunker: NewChunker(DefaultChunkerOptions)}
}

// SourceKind distinguishes the three ingestable source shapes.
type SourceKind string

const (
	SourceRaw  SourceKind = "raw"
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
)

// IngestParams are the caller-supplied fields for Ingest.
type IngestParams struct {
	ProjectID string
	Kind      SourceKind
	// SourcePath identifies a file-kind source, project-relative.
	SourcePath string
	// SourceURL identifies a url-kind source.
	SourceURL string
	// Content is the full text already read from disk/network/the caller.
	// Ingest never performs file or HTTP I/O itself (§1 non-goal: wire
	// formats and upstream fetches are the caller's concern).
	Content string
}

// Result reports whether Ingest persisted new content or found the source
// unchanged.
type Result struct {
	Document  *store.Document
	Unchanged bool
}

// Ingest computes a SHA-256 checksum over the content and either returns
// the existing Document unchanged (same source, same checksum), replaces
// its chunks/vectors in place (same source, different checksum), or
// creates a new Document.
func (ig *Ingester) Ingest(ctx context.Context, p IngestParams, now time.Time) (*Result, error) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, ccerrors.ValidationError("document content must not be empty", nil)
	}

	checksum := checksumHex(p.Content)

	existing, err := ig.findExisting(ctx, p)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Checksum == checksum {
		return &Result{Document: existing, Unchanged: true}, nil
	}

	title := extractTitle(p.Content)
	sourceType, isCode := classify(p)

	if existing != nil {
		existing.Title = title
		existing.FullContent = p.Content
		existing.Checksum = checksum
		existing.SourceType = sourceType
		existing.IsCode = isCode
		existing.UpdatedAt = now
		if err := ig.db.UpdateDocument(ctx, existing); err != nil {
			return nil, err
		}
		if _, err := ig.db.DeleteChunkVectorsForDocument(ctx, existing.ID); err != nil {
			return nil, err
		}
		if err := ig.chunkAndEmbed(ctx, p.ProjectID, existing, now); err != nil {
			return nil, err
		}
		return &Result{Document: existing}, nil
	}

	doc := &store.Document{
		ID:          uuid.NewString(),
		ProjectID:   p.ProjectID,
		Title:       title,
		FullContent: p.Content,
		Checksum:    checksum,
		SourceType:  sourceType,
		IsCode:      isCode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.SourcePath != "" {
		doc.SourcePath = &p.SourcePath
	}
	if p.SourceURL != "" {
		doc.SourceURL = &p.SourceURL
	}

	if err := ig.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := ig.chunkAndEmbed(ctx, p.ProjectID, doc, now); err != nil {
		return nil, err
	}
	return &Result{Document: doc}, nil
}

func (ig *Ingester) findExisting(ctx context.Context, p IngestParams) (*store.Document, error) {
	if p.SourcePath != "" {
		return ig.db.DocumentByPath(ctx, p.ProjectID, p.SourcePath)
	}
	doc, err := ig.db.GetDocumentByChecksum(ctx, p.ProjectID, checksumHex(p.Content))
	if err != nil {
		if ccerrors.GetCode(err) == ccerrors.ErrCodeDocumentNotFound {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

func (ig *Ingester) chunkAndEmbed(ctx context.Context, projectID string, doc *store.Document, now time.Time) error {
	pieces := ig.chunker.Chunk(doc.FullContent)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]*store.DocumentChunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &store.DocumentChunk{
			ID:             uuid.NewString(),
			DocumentID:     doc.ID,
			ChunkIndex:     i,
			Content:        piece.Content,
			StartOffset:    piece.StartOffset,
			EndOffset:      piece.EndOffset,
			TokensEstimate: (piece.EndOffset - piece.StartOffset) / 4,
		}
		texts[i] = piece.Content
	}

	if err := ig.db.CreateDocumentChunks(ctx, chunks); err != nil {
		return err
	}
	return ig.embedChunks(ctx, projectID, chunks, texts, now)
}

func (ig *Ingester) embedChunks(ctx context.Context, projectID string, chunks []*store.DocumentChunk, texts []string, now time.Time) error {
	if ig.embedder == nil {
		for _, c := range chunks {
			_ = ig.db.UpsertPendingVector(ctx, c.ID, "chunk", projectID, c.Content, now.UTC().Format(time.RFC3339Nano))
		}
		return nil
	}
	vecs, err := ig.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("embedding unavailable during document ingest, deferring", slog.String("error", err.Error()))
		for _, c := range chunks {
			_ = ig.db.UpsertPendingVector(ctx, c.ID, "chunk", projectID, c.Content, now.UTC().Format(time.RFC3339Nano))
		}
		return nil
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := ig.db.UpsertDocumentVectors(ctx, ig.embedder.ModelName(), ids, vecs); err != nil {
		return err
	}
	if ig.vectors != nil {
		if err := ig.vectors.Add(ctx, ids, vecs); err != nil {
			return err
		}
	}
	return nil
}

func classify(p IngestParams) (store.DocumentSourceType, bool) {
	switch {
	case p.Kind == SourceURL:
		return store.DocSourceURL, false
	case strings.HasSuffix(p.SourcePath, ".md") || strings.HasSuffix(p.SourcePath, ".markdown"):
		return store.DocSourceMD, false
	case p.SourcePath != "":
		return store.DocSourceText, false
	default:
		return store.DocSourceText, false
	}
}

var markdownH1 = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// extractTitle takes the first markdown H1 if present, else the first
// non-blank line truncated to TitleMaxChars (§4.8).
func extractTitle(content string) *string {
	if m := markdownH1.FindStringSubmatch(content); m != nil {
		t := strings.TrimSpace(m[1])
		return &t
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r := []rune(line)
		if len(r) > TitleMaxChars {
			line = string(r[:TitleMaxChars])
		}
		return &line
	}
	return nil
}

func checksumHex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
