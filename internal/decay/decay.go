// Package decay implements the periodic salience decay, tier-promotion,
// and pending-vector backfill sweeps that run as one background loop
// (§4.3 decay, §9 promotion policy, §9 pending-vector backfill).
package decay

import (
	"context"
	"log/slog"
	"time"

	"github.com/ccmemory/ccmemory/internal/embed"
	"github.com/ccmemory/ccmemory/internal/store"
)

// SweepInterval is how often the scheduler runs a full pass. Decay and
// promotion are cheap scans; an hour keeps salience values visibly fresh
// without turning the store into a write-heavy background job.
const SweepInterval = time.Hour

// PromotionSessionThreshold and PromotionSalienceThreshold gate
// session→project tier promotion (Open Question resolved in SPEC_FULL
// §3): a session-tier memory linked to at least this many distinct
// sessions, with salience at or above this floor, is promoted on the
// next decay run.
const (
	PromotionSessionThreshold  = 2
	PromotionSalienceThreshold = 0.6
)

// ScanBatchSize bounds how many memory rows ListMemoriesForDecay and
// ListPendingVectors return per page of a sweep.
const ScanBatchSize = 500

// SectorDecayRate is the per-day salience decay amount applied by
// sector, grounded in the same fixed-per-sector table idea as
// search.SectorBonus (§3.2's "sector ... determines decay rate" — the
// spec names the relationship but not a number, so this is this
// package's resolution of it): sectors holding durable knowledge decay
// slowest, sectors holding transient day-to-day signal decay fastest.
var SectorDecayRate = map[store.Sector]float64{
	store.SectorEpisodic:   0.02,
	store.SectorEmotional:  0.015,
	store.SectorReflective: 0.01,
	store.SectorSemantic:   0.005,
	store.SectorProcedural: 0.005,
}

// DefaultDecayRate applies when a memory's sector has no entry above.
const DefaultDecayRate = 0.01

// Scheduler runs the decay/promotion/backfill sweeps.
type Scheduler struct {
	db         *store.DB
	embedder   embed.Embedder
	vectors    store.VectorStore
	docVectors store.VectorStore
}

// New wraps a DB as a decay Scheduler. The embedder and vector stores may
// be nil; the backfill sweep becomes a no-op (rows stay pending) until
// they're set.
func New(db *store.DB) *Scheduler {
	return &Scheduler{db: db}
}

// SetEmbedder attaches the embedding gateway and the two vector stores
// (memories, document/code chunks) the backfill sweep writes into.
func (s *Scheduler) SetEmbedder(embedder embed.Embedder, memoryVectors, docVectors store.VectorStore) {
	s.embedder = embedder
	s.vectors = memoryVectors
	s.docVectors = docVectors
}

// Result summarizes one full sweep.
type Result struct {
	Decayed       int
	Promoted      int
	Backfilled    int
	BackfillFailed int
}

// RunOnce performs one decay sweep, one promotion sweep, and one
// pending-vector backfill sweep, in that order.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (*Result, error) {
	r := &Result{}
	decayed, err := s.decaySweep(ctx, now)
	if err != nil {
		return nil, err
	}
	r.Decayed = decayed

	promoted, err := s.promotionSweep(ctx, now)
	if err != nil {
		return nil, err
	}
	r.Promoted = promoted

	filled, failed, err := s.backfillSweep(ctx, now)
	if err != nil {
		return nil, err
	}
	r.Backfilled = filled
	r.BackfillFailed = failed

	return r, nil
}

// Run loops RunOnce on SweepInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := s.RunOnce(ctx, time.Now())
			if err != nil {
				slog.Warn("decay sweep failed", slog.String("error", err.Error()))
				continue
			}
			slog.Info("decay sweep complete",
				slog.Int("decayed", res.Decayed),
				slog.Int("promoted", res.Promoted),
				slog.Int("backfilled", res.Backfilled),
				slog.Int("backfill_failed", res.BackfillFailed))
		}
	}
}

// decaySweep applies SectorDecayRate to every live memory's salience,
// scaled by elapsed time since last_accessed, floored at MinSalience.
func (s *Scheduler) decaySweep(ctx context.Context, now time.Time) (int, error) {
	n := 0
	afterID := ""
	for {
		page, err := s.db.ListMemoriesForDecay(ctx, afterID, ScanBatchSize)
		if err != nil {
			return n, err
		}
		if len(page) == 0 {
			return n, nil
		}
		for _, m := range page {
			rate, ok := SectorDecayRate[m.Sector]
			if !ok {
				rate = DefaultDecayRate
			}
			elapsedDays := now.Sub(m.LastAccessed).Hours() / 24
			if elapsedDays <= 0 {
				continue
			}
			amount := rate * elapsedDays
			if amount <= 0 {
				continue
			}
			newSalience := m.Salience - amount
			if newSalience < store.MinSalience {
				newSalience = store.MinSalience
			}
			if newSalience == m.Salience {
				continue
			}
			if err := s.db.UpdateSalience(ctx, m.ID, newSalience, now); err != nil {
				return n, err
			}
			n++
		}
		afterID = page[len(page)-1].ID
		if len(page) < ScanBatchSize {
			return n, nil
		}
	}
}

// promotionSweep promotes session-tier memories with enough distinct
// session linkage and salience to project tier.
func (s *Scheduler) promotionSweep(ctx context.Context, now time.Time) (int, error) {
	n := 0
	afterID := ""
	tier := store.TierSession
	for {
		page, err := s.db.ListMemoriesForDecay(ctx, afterID, ScanBatchSize)
		if err != nil {
			return n, err
		}
		if len(page) == 0 {
			return n, nil
		}
		for _, m := range page {
			if m.Tier != tier {
				continue
			}
			if m.Salience < PromotionSalienceThreshold {
				continue
			}
			count, err := s.db.DistinctSessionCount(ctx, m.ID)
			if err != nil {
				return n, err
			}
			if count < PromotionSessionThreshold {
				continue
			}
			if err := s.db.PromoteToProjectTier(ctx, m.ID, now); err != nil {
				return n, err
			}
			n++
		}
		afterID = page[len(page)-1].ID
		if len(page) < ScanBatchSize {
			return n, nil
		}
	}
}

// backfillSweep retries embeddings for rows recorded in pending_vectors,
// routing each to the memory or document/code vector store by
// owner_kind. A row that fails again has its attempt counter bumped and
// is left in place for the next sweep.
func (s *Scheduler) backfillSweep(ctx context.Context, now time.Time) (filled, failed int, err error) {
	if s.embedder == nil {
		return 0, 0, nil
	}
	if !s.embedder.Available(ctx) {
		return 0, 0, nil
	}

	pending, err := s.db.ListPendingVectors(ctx, ScanBatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, p := range pending {
		vec, embedErr := s.embedder.Embed(ctx, p.Content)
		if embedErr != nil {
			slog.Warn("pending vector backfill still unavailable",
				slog.String("owner_id", p.OwnerID), slog.String("error", embedErr.Error()))
			_ = s.db.BumpPendingVectorAttempt(ctx, p.OwnerID)
			failed++
			continue
		}

		switch p.OwnerKind {
		case "memory":
			if err := s.db.UpsertMemoryVector(ctx, p.OwnerID, s.embedder.ModelName(), vec); err != nil {
				failed++
				continue
			}
			if s.vectors != nil {
				_ = s.vectors.Add(ctx, []string{p.OwnerID}, [][]float32{vec})
			}
		case "chunk":
			if err := s.db.UpsertDocumentVectors(ctx, s.embedder.ModelName(), []string{p.OwnerID}, [][]float32{vec}); err != nil {
				failed++
				continue
			}
			if s.docVectors != nil {
				_ = s.docVectors.Add(ctx, []string{p.OwnerID}, [][]float32{vec})
			}
		default:
			slog.Warn("pending vector with unknown owner_kind", slog.String("owner_kind", p.OwnerKind))
			failed++
			continue
		}

		if err := s.db.ClearPendingVector(ctx, p.OwnerID); err != nil {
			return filled, failed, err
		}
		filled++
	}

	return filled, failed, nil
}
