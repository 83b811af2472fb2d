package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/ccmemory/ccmemory/internal/store"
)

// Checker runs the index consistency sweep (SPEC_FULL §3): periodic
// reconciliation between document_chunks rows (code and markdown alike,
// since both land in the same table here) and the document vector
// store's id set, repairing drift. Adapted from the teacher's code-only
// ConsistencyChecker, which compared a BM25 index and a vector store
// against chunk metadata; FTS5 here is a SQLite index over the same
// document_chunks rows and can't drift from its own table the way a
// separate BM25 process could, so only the vector store needs checking.
type Checker struct {
	db      *store.DB
	vectors store.VectorStore
}

// NewChecker wires a Checker for the document/code vector store.
func NewChecker(db *store.DB, vectors store.VectorStore) *Checker {
	return &Checker{db: db, vectors: vectors}
}

// CheckResult is one sweep's findings.
type CheckResult struct {
	Checked        int
	OrphanVectors  []string // in the vector store, no matching chunk row
	MissingVectors []string // a chunk row with no vector
	Duration       time.Duration
}

// Check compares document_chunks against the vector store's id set.
func (c *Checker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	chunkIDs, err := c.db.AllChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	truth := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		truth[id] = true
	}

	vectorIDs := c.vectors.AllIDs()
	present := make(map[string]bool, len(vectorIDs))
	var orphans []string
	for _, id := range vectorIDs {
		present[id] = true
		if !truth[id] {
			orphans = append(orphans, id)
		}
	}

	var missing []string
	for id := range truth {
		if !present[id] {
			missing = append(missing, id)
		}
	}

	return &CheckResult{
		Checked:        len(truth),
		OrphanVectors:  orphans,
		MissingVectors: missing,
		Duration:       time.Since(start),
	}, nil
}

// Repair deletes orphan vectors outright and requeues missing ones onto
// pending_vectors with owner_kind "chunk" — the same recovery path
// embedding failures already use, so decay.Scheduler's backfill sweep
// picks them up on its next pass without this package needing its own
// embedder.
func (c *Checker) Repair(ctx context.Context, res *CheckResult) error {
	if len(res.OrphanVectors) > 0 {
		if err := c.vectors.Delete(ctx, res.OrphanVectors); err != nil {
			slog.Warn("consistency: failed to delete orphan vectors",
				slog.Int("count", len(res.OrphanVectors)), slog.String("error", err.Error()))
		} else {
			slog.Info("consistency: deleted orphan vectors", slog.Int("count", len(res.OrphanVectors)))
		}
	}

	if len(res.MissingVectors) == 0 {
		return nil
	}
	chunks, err := c.db.ChunksByIDs(ctx, res.MissingVectors)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, ch := range chunks {
		if err := c.db.UpsertPendingVector(ctx, ch.Chunk.ID, "chunk", ch.ProjectID, ch.Chunk.Content, now); err != nil {
			slog.Warn("consistency: failed to queue chunk backfill",
				slog.String("chunk_id", ch.Chunk.ID), slog.String("error", err.Error()))
		}
	}
	slog.Info("consistency: queued missing-vector chunks for backfill", slog.Int("count", len(chunks)))
	return nil
}
