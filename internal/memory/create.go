package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ccmemory/ccmemory/internal/coordinator"
	"github.com/ccmemory/ccmemory/internal/embed"
	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/store"
)

// DedupScanWindow bounds how many recent live memories the dedup probe
// compares against per create call.
const DedupScanWindow = 500

// ReinforceOnDedup is the amount applied when create() finds a near-duplicate.
const ReinforceOnDedup = 0.1

// Store is the memory store: create/dedup, CRUD, reinforcement.
type Store struct {
	db       *store.DB
	events   *coordinator.EventBus
	embedder embed.Embedder
	vectors  store.VectorStore
}

// New wraps a DB as a memory Store. Events go unpublished until
// SetEventBus is called, and new memories are left with no vector (and a
// pending_vectors row) until SetEmbedder is called.
func New(db *store.DB) *Store {
	return &Store{db: db}
}

// SetEventBus attaches the event bus writes are published to. Publishing
// is fire-and-forget: failures are swallowed, matching the coordinator's
// best-effort delivery contract (§4.9).
func (s *Store) SetEventBus(bus *coordinator.EventBus) {
	s.events = bus
}

// SetEmbedder attaches the embedding gateway and the in-process vector
// index new memories are embedded into at create time.
func (s *Store) SetEmbedder(embedder embed.Embedder, vectors store.VectorStore) {
	s.embedder = embedder
	s.vectors = vectors
}

// embedOne embeds a freshly created memory and persists the vector, or
// defers it to pending_vectors on EmbeddingUnavailable (§7, §9
// pending-vector backfill) — mirrors internal/index's embedChunks.
func (s *Store) embedOne(ctx context.Context, m *store.Memory, now time.Time) {
	if s.embedder == nil {
		_ = s.db.UpsertPendingVector(ctx, m.ID, "memory", m.ProjectID, m.Content, fmtRFC3339(now))
		return
	}
	vec, err := s.embedder.Embed(ctx, m.Content)
	if err != nil {
		slog.Warn("embedding unavailable for new memory, deferring", slog.String("memory_id", m.ID), slog.String("error", err.Error()))
		_ = s.db.UpsertPendingVector(ctx, m.ID, "memory", m.ProjectID, m.Content, fmtRFC3339(now))
		return
	}
	if err := s.db.UpsertMemoryVector(ctx, m.ID, s.embedder.ModelName(), vec); err != nil {
		slog.Warn("failed to persist memory vector", slog.String("memory_id", m.ID), slog.String("error", err.Error()))
		return
	}
	if s.vectors != nil {
		if err := s.vectors.Add(ctx, []string{m.ID}, [][]float32{vec}); err != nil {
			slog.Warn("failed to index memory vector", slog.String("memory_id", m.ID), slog.String("error", err.Error()))
		}
	}
}

func fmtRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Store) publish(eventType, memoryID, projectID string, now time.Time) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(coordinator.Event{Type: eventType, MemoryID: memoryID, ProjectID: projectID, Timestamp: now})
}

// CreateParams are the caller-supplied fields for Create; everything else
// (id, simhash, content_hash, timestamps, salience=1.0) is computed.
type CreateParams struct {
	ProjectID  string
	SessionID  *string
	SegmentID  *string
	Content    string
	Summary    *string
	Context    map[string]string
	MemoryType *store.MemoryType
	Sector     *store.Sector // overrides content-classification, unless MemoryType is also set
	Tags       []string
	Concepts   []string // extracted deterministically if nil
	Files      []string
	Importance float64
	Confidence float64
	Tier       store.Tier // defaults to TierSession when empty
}

// CreateResult reports whether Create persisted a new row or reinforced an
// existing near-duplicate.
type CreateResult struct {
	Memory     *store.Memory
	Deduped    bool
	Reinforced bool
}

// Create runs the dedup probe and either reinforces an existing near-
// duplicate memory or persists a new one.
func (s *Store) Create(ctx context.Context, p CreateParams, now time.Time) (*CreateResult, error) {
	if p.Content == "" {
		return nil, ccerrors.ValidationError("memory content must not be empty", nil)
	}

	sig := Simhash(p.Content)
	contentHash := ContentHash(p.Content)

	dup, err := s.findDuplicate(ctx, p.ProjectID, sig)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		if err := s.reinforceLocked(ctx, dup, ReinforceOnDedup, now); err != nil {
			return nil, err
		}
		if p.SessionID != nil {
			if err := s.db.LinkSessionMemory(ctx, *p.SessionID, dup.ID, "reinforced", now); err != nil {
				return nil, err
			}
		}
		s.publish("memory:reinforced", dup.ID, p.ProjectID, now)
		return &CreateResult{Memory: dup, Deduped: true, Reinforced: true}, nil
	}

	concepts := p.Concepts
	if concepts == nil {
		concepts = ExtractConcepts(p.Content)
	}

	sector := ClassifySector(p.Content, p.MemoryType)
	if p.MemoryType == nil && p.Sector != nil {
		sector = *p.Sector
	}

	importance := p.Importance
	if importance == 0 {
		importance = 0.5
	}
	confidence := p.Confidence
	if confidence == 0 {
		confidence = 0.5
	}

	tier := p.Tier
	if tier == "" {
		tier = store.TierSession
	}

	m := &store.Memory{
		ID:           uuid.NewString(),
		ProjectID:    p.ProjectID,
		SessionID:    p.SessionID,
		SegmentID:    p.SegmentID,
		Content:      p.Content,
		Summary:      p.Summary,
		Context:      p.Context,
		ContentHash:  contentHash,
		Sector:       sector,
		Tier:         tier,
		MemoryType:   p.MemoryType,
		Simhash:      sig,
		Importance:   importance,
		Salience:     store.MaxSalience,
		AccessCount:  0,
		Confidence:   confidence,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
		Tags:         p.Tags,
		Concepts:     concepts,
		Files:        p.Files,
	}

	if err := s.db.CreateMemory(ctx, m); err != nil {
		return nil, err
	}
	if p.SessionID != nil {
		if err := s.db.LinkSessionMemory(ctx, *p.SessionID, m.ID, "created", now); err != nil {
			return nil, err
		}
	}

	s.embedOne(ctx, m, now)
	s.publish("memory:created", m.ID, m.ProjectID, now)
	return &CreateResult{Memory: m}, nil
}

// findDuplicate scans recent live memories in the project for one whose
// simhash Hamming distance to sig is ≤ 3 (inclusive boundary).
func (s *Store) findDuplicate(ctx context.Context, projectID string, sig uint64) (*store.Memory, error) {
	candidates, err := s.db.ListBySimhashPrefix(ctx, projectID, DedupScanWindow)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if c.IsDeleted {
			continue
		}
		if HammingDistance(c.Simhash, sig) <= 3 {
			return c, nil
		}
	}
	return nil, nil
}
