package docs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccmemory/ccmemory/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.UpsertProject(ctx, "proj-1", "/tmp/proj-1", "proj-1", time.Now())
	require.NoError(t, err)
	return db
}

func TestIngestCreatesNewDocument(t *testing.T) {
	db := newTestDB(t)
	ig := New(db, nil, nil)
	ctx := context.Background()

	res, err := ig.Ingest(ctx, IngestParams{
		ProjectID:  "proj-1",
		Kind:       SourceFile,
		SourcePath: "notes.md",
		Content:    "# My Title\n\nSome content here.",
	}, time.Now())
	require.NoError(t, err)
	require.False(t, res.Unchanged)
	require.Equal(t, "My Title", *res.Document.Title)
	require.Equal(t, store.DocSourceMD, res.Document.SourceType)

	chunks, err := db.ChunksForDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
}

func TestIngestIsUnchangedOnSameChecksum(t *testing.T) {
	db := newTestDB(t)
	ig := New(db, nil, nil)
	ctx := context.Background()
	now := time.Now()

	first, err := ig.Ingest(ctx, IngestParams{
		ProjectID:  "proj-1",
		Kind:       SourceFile,
		SourcePath: "notes.txt",
		Content:    "same content",
	}, now)
	require.NoError(t, err)
	require.False(t, first.Unchanged)

	second, err := ig.Ingest(ctx, IngestParams{
		ProjectID:  "proj-1",
		Kind:       SourceFile,
		SourcePath: "notes.txt",
		Content:    "same content",
	}, now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, second.Unchanged)
	require.Equal(t, first.Document.ID, second.Document.ID)
}

func TestIngestReplacesChunksOnChangedContent(t *testing.T) {
	db := newTestDB(t)
	ig := New(db, nil, nil)
	ctx := context.Background()
	now := time.Now()

	first, err := ig.Ingest(ctx, IngestParams{
		ProjectID:  "proj-1",
		Kind:       SourceFile,
		SourcePath: "notes.txt",
		Content:    "first version of the content",
	}, now)
	require.NoError(t, err)

	second, err := ig.Ingest(ctx, IngestParams{
		ProjectID:  "proj-1",
		Kind:       SourceFile,
		SourcePath: "notes.txt",
		Content:    "a completely different second version",
	}, now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, second.Unchanged)
	require.Equal(t, first.Document.ID, second.Document.ID)

	got, err := db.GetDocument(ctx, second.Document.ID)
	require.NoError(t, err)
	require.Equal(t, "a completely different second version", got.FullContent)
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	db := newTestDB(t)
	ig := New(db, nil, nil)
	ctx := context.Background()

	_, err := ig.Ingest(ctx, IngestParams{ProjectID: "proj-1", Content: "   "}, time.Now())
	require.Error(t, err)
}

func TestExtractTitleFallsBackToFirstLine(t *testing.T) {
	title := extractTitle("No heading here.\nSecond line.")
	require.NotNil(t, title)
	require.Equal(t, "No heading here.", *title)
}

func TestChunkerRespectsMinimumSizeAndOverlap(t *testing.T) {
	c := NewChunker(ChunkerOptions{TargetTokens: 20, OverlapRatio: 0.2, MinChunkChars: 10})
	content := "Paragraph one has some words in it.\n\nParagraph two also has several words.\n\nParagraph three wraps things up nicely."
	chunks := c.Chunk(content)
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		require.LessOrEqual(t, ch.StartOffset, ch.EndOffset)
		require.GreaterOrEqual(t, len(strings.TrimSpace(ch.Content)), 10)
		if i > 0 {
			require.Less(t, ch.StartOffset, chunks[i-1].EndOffset)
		}
	}
}
