// Package index implements the code indexer: the gitignore-aware scanner
// driven incremental indexer, the watcher reconciler, and the cleanup
// sweep (spec §4.7).
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ccmemory/ccmemory/internal/chunk"
	"github.com/ccmemory/ccmemory/internal/embed"
	"github.com/ccmemory/ccmemory/internal/scanner"
	"github.com/ccmemory/ccmemory/internal/store"
)

// DefaultConcurrency is how many files are embedded in flight at once
// (§4.7 "configurable concurrency, default 5 files in flight").
const DefaultConcurrency = 5

// Phase names reported through the progress callback.
const (
	PhaseScanning  = "scanning"
	PhaseIndexing  = "indexing"
	PhaseComplete  = "complete"
)

// Progress is one callback invocation describing indexing progress.
type Progress struct {
	Phase        string
	FilesScanned int
	FilesIndexed int
	FilesSkipped int
	Errors       []string
}

// ProgressFunc receives Progress updates as a run advances.
type ProgressFunc func(Progress)

// Options configures one indexing run.
type Options struct {
	ProjectID   string
	ProjectRoot string
	Concurrency int  // default DefaultConcurrency
	DryRun      bool // scan only, no writes
	Force       bool // re-embed everything, ignore checksum match
	OnProgress  ProgressFunc
}

// Indexer is the project scanner + incremental embedding pipeline.
type Indexer struct {
	db          *store.DB
	vectors     store.VectorStore
	embedder    embed.Embedder
	scanner     *scanner.Scanner
	codeChunker chunk.Chunker
	mdChunker   chunk.Chunker
}

// New wires an Indexer from its dependencies.
func New(db *store.DB, vectors store.VectorStore, embedder embed.Embedder, sc *scanner.Scanner) *Indexer {
	return &Indexer{
		db:          db,
		vectors:     vectors,
		embedder:    embedder,
		scanner:     sc,
		codeChunker: chunk.NewCodeChunker(),
		mdChunker:   chunk.NewMarkdownChunker(),
	}
}

// Result summarizes one completed run.
type Result struct {
	FilesScanned int
	FilesIndexed int
	FilesSkipped int
	Chunks       int
	Duration     time.Duration
	Errors       []string
}

// Run scans the project, indexes every file whose checksum or gitignore-
// ruleset hash changed since its last IndexedFile row, and reports progress
// through opts.OnProgress.
func (ix *Indexer) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	report := opts.OnProgress
	if report == nil {
		report = func(Progress) {}
	}

	gitignoreHash, err := hashGitignoreTree(opts.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("hash gitignore tree: %w", err)
	}

	results, err := ix.scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:          opts.ProjectRoot,
		RespectGitignore: true,
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	res := &Result{}
	var files []*scanner.FileInfo
	for sr := range results {
		if sr.Error != nil {
			res.Errors = append(res.Errors, sr.Error.Error())
			continue
		}
		if sr.File.ContentType != scanner.ContentTypeCode && sr.File.ContentType != scanner.ContentTypeMarkdown {
			continue
		}
		files = append(files, sr.File)
	}
	res.FilesScanned = len(files)
	report(Progress{Phase: PhaseScanning, FilesScanned: res.FilesScanned, Errors: res.Errors})

	if opts.DryRun {
		res.Duration = time.Since(start)
		report(Progress{Phase: PhaseComplete, FilesScanned: res.FilesScanned, Errors: res.Errors})
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	type fileOutcome struct {
		indexed bool
		chunks  int
		err     error
	}
	outcomes := make([]fileOutcome, len(files))

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			indexed, n, err := ix.indexOneIfChanged(gctx, opts.ProjectID, opts.ProjectRoot, f, gitignoreHash, opts.Force)
			outcomes[i] = fileOutcome{indexed: indexed, chunks: n, err: err}
			return nil // per-file errors are collected, not fatal (§4.7)
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", files[i].Path, o.err))
			continue
		}
		if o.indexed {
			res.FilesIndexed++
			res.Chunks += o.chunks
		} else {
			res.FilesSkipped++
		}
		report(Progress{
			Phase:        PhaseIndexing,
			FilesScanned: res.FilesScanned,
			FilesIndexed: res.FilesIndexed,
			FilesSkipped: res.FilesSkipped,
			Errors:       res.Errors,
		})
	}

	res.Duration = time.Since(start)
	if err := ix.db.UpsertCodeIndexState(ctx, &store.CodeIndexState{
		ProjectID:     opts.ProjectID,
		LastIndexedAt: time.Now(),
		IndexedFiles:  res.FilesIndexed,
		Errors:        res.Errors,
	}); err != nil {
		return nil, err
	}
	report(Progress{Phase: PhaseComplete, FilesScanned: res.FilesScanned, FilesIndexed: res.FilesIndexed,
		FilesSkipped: res.FilesSkipped, Errors: res.Errors})
	return res, nil
}

// indexOneIfChanged implements the per-file skip/reindex decision (§4.7):
// skip when the content checksum and gitignore-ruleset hash both match the
// last IndexedFile row, unless force is set.
func (ix *Indexer) indexOneIfChanged(ctx context.Context, projectID, root string, f *scanner.FileInfo, gitignoreHash string, force bool) (bool, int, error) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return false, 0, err
	}
	checksum := sha256Hex(content)

	if !force {
		existing, err := ix.db.GetIndexedFile(ctx, projectID, f.Path)
		if err != nil {
			return false, 0, err
		}
		if existing != nil && existing.Checksum == checksum && existing.GitignoreHash == gitignoreHash {
			return false, 0, nil
		}
	}

	n, err := ix.indexFile(ctx, projectID, f, content, checksum, gitignoreHash)
	if err != nil {
		return false, 0, err
	}
	return true, n, nil
}

// indexFile deletes any prior document/chunks/vectors for the file, chunks
// and embeds the new content, and upserts the IndexedFile row.
func (ix *Indexer) indexFile(ctx context.Context, projectID string, f *scanner.FileInfo, content []byte, checksum, gitignoreHash string) (int, error) {
	now := time.Now()

	if existingDoc, err := ix.db.DocumentByPath(ctx, projectID, f.Path); err != nil {
		return 0, err
	} else if existingDoc != nil {
		chunkIDs, err := ix.db.DeleteChunkVectorsForDocument(ctx, existingDoc.ID)
		if err != nil {
			return 0, err
		}
		if ix.vectors != nil && len(chunkIDs) > 0 {
			_ = ix.vectors.Delete(ctx, chunkIDs)
		}
		if _, err := ix.db.DeleteDocumentCascade(ctx, projectID, existingDoc.ID, ""); err != nil {
			return 0, err
		}
	}

	chunker := ix.codeChunker
	if f.ContentType == scanner.ContentTypeMarkdown {
		chunker = ix.mdChunker
	}
	rawChunks, err := chunker.Chunk(ctx, &chunk.FileInput{Path: f.Path, Content: content, Language: f.Language})
	if err != nil {
		return 0, err
	}

	docID := sha256Hex([]byte(projectID + ":" + f.Path))
	sourcePath := f.Path
	doc := &store.Document{
		ID:          docID,
		ProjectID:   projectID,
		SourcePath:  &sourcePath,
		SourceType:  store.DocSourceCode,
		FullContent: string(content),
		Checksum:    checksum,
		IsCode:      f.ContentType == scanner.ContentTypeCode,
		Language:    &f.Language,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := ix.db.CreateDocument(ctx, doc); err != nil {
		return 0, err
	}

	storeChunks := make([]*store.DocumentChunk, len(rawChunks))
	texts := make([]string, len(rawChunks))
	for i, c := range rawChunks {
		symbols := make([]string, len(c.Symbols))
		for j, sym := range c.Symbols {
			symbols[j] = sym.Name
		}
		storeChunks[i] = &store.DocumentChunk{
			ID:         fmt.Sprintf("%s:%d", docID, i),
			DocumentID: docID,
			ChunkIndex: i,
			Content:    c.Content,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			Symbols:    symbols,
			Language:   c.Language,
		}
		texts[i] = c.Content
	}
	if len(storeChunks) > 0 {
		if err := ix.db.CreateDocumentChunks(ctx, storeChunks); err != nil {
			return 0, err
		}
	}

	if err := ix.embedChunks(ctx, projectID, storeChunks, texts); err != nil {
		return 0, err
	}

	if err := ix.db.UpsertIndexedFile(ctx, &store.IndexedFile{
		ProjectID:     projectID,
		Path:          f.Path,
		Checksum:      checksum,
		LastIndexedAt: now,
		Language:      f.Language,
		GitignoreHash: gitignoreHash,
	}); err != nil {
		return 0, err
	}
	return len(storeChunks), nil
}

func (ix *Indexer) embedChunks(ctx context.Context, projectID string, chunks []*store.DocumentChunk, texts []string) error {
	if len(chunks) == 0 {
		return nil
	}
	if ix.embedder == nil {
		for _, c := range chunks {
			_ = ix.db.UpsertPendingVector(ctx, c.ID, "chunk", projectID, c.Content, fmtRFC3339(time.Now()))
		}
		return nil
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("embedding unavailable during indexing, deferring", slog.String("error", err.Error()))
		for _, c := range chunks {
			_ = ix.db.UpsertPendingVector(ctx, c.ID, "chunk", projectID, c.Content, fmtRFC3339(time.Now()))
		}
		return nil
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if ix.vectors != nil {
		if err := ix.vectors.Add(ctx, ids, vecs); err != nil {
			return err
		}
	}
	return ix.db.UpsertDocumentVectors(ctx, ix.embedder.ModelName(), ids, vecs)
}

// DeleteFile removes a single file's document, chunks, vectors, and
// indexed-file row. Returns whether a row was removed (§4.7 deleteFile).
func (ix *Indexer) DeleteFile(ctx context.Context, projectID, path string) (bool, error) {
	doc, err := ix.db.DocumentByPath(ctx, projectID, path)
	if err != nil {
		return false, err
	}
	if doc == nil {
		removed, err := ix.db.DeleteIndexedFile(ctx, projectID, path)
		return removed, err
	}
	chunkIDs, err := ix.db.DeleteChunkVectorsForDocument(ctx, doc.ID)
	if err != nil {
		return false, err
	}
	if ix.vectors != nil && len(chunkIDs) > 0 {
		_ = ix.vectors.Delete(ctx, chunkIDs)
	}
	return ix.db.DeleteDocumentCascade(ctx, projectID, doc.ID, path)
}

// CleanupDeletedFiles walks every IndexedFile row for a project and removes
// rows whose backing path no longer exists on disk (§4.7 cleanupDeletedFiles).
func (ix *Indexer) CleanupDeletedFiles(ctx context.Context, projectID, projectRoot string) (int, error) {
	files, err := ix.db.ListIndexedFiles(ctx, projectID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if _, statErr := os.Stat(filepath.Join(projectRoot, f.Path)); errors.Is(statErr, fs.ErrNotExist) {
			if ok, err := ix.DeleteFile(ctx, projectID, f.Path); err != nil {
				return removed, err
			} else if ok {
				removed++
			}
		}
	}
	return removed, nil
}

// hashGitignoreTree hashes every .gitignore file under root (path + content,
// sorted) so any change anywhere invalidates all files' incremental state
// (§4.7 "a change in any .gitignore invalidates incremental state").
func hashGitignoreTree(root string) (string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && (d.Name() == ".git" || d.Name() == "node_modules") {
			return filepath.SkipDir
		}
		if !d.IsDir() && d.Name() == ".gitignore" {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		rel, _ := filepath.Rel(root, p)
		h.Write([]byte(rel))
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func fmtRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
