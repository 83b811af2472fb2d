// Package store provides the embedded relational store (SQLite via
// modernc.org/sqlite), the FTS5 keyword index, and the HNSW vector index
// that back the memory store, the search engine, and the code indexer.
package store

import (
	"context"
	"fmt"
	"time"
)

// Sector is one of the five fixed categories a memory belongs to.
type Sector string

const (
	SectorEpisodic   Sector = "episodic"
	SectorSemantic   Sector = "semantic"
	SectorProcedural Sector = "procedural"
	SectorEmotional  Sector = "emotional"
	SectorReflective Sector = "reflective"
)

// Tier controls default query scope and decay/archival eligibility.
type Tier string

const (
	TierSession Tier = "session"
	TierProject Tier = "project"
)

// MemoryType is an optional finer classification of a memory; when set it
// determines the memory's sector via a fixed mapping (see SectorForType).
type MemoryType string

const (
	MemoryTypePreference     MemoryType = "preference"
	MemoryTypeCodebase       MemoryType = "codebase"
	MemoryTypeDecision       MemoryType = "decision"
	MemoryTypeGotcha         MemoryType = "gotcha"
	MemoryTypePattern        MemoryType = "pattern"
	MemoryTypeTurnSummary    MemoryType = "turn_summary"
	MemoryTypeTaskCompletion MemoryType = "task_completion"
)

// SectorForType returns the fixed sector for a memory type, and false if the
// type has no mapping (caller must classify or default).
func SectorForType(t MemoryType) (Sector, bool) {
	switch t {
	case MemoryTypePreference:
		return SectorEmotional, true
	case MemoryTypeCodebase:
		return SectorSemantic, true
	case MemoryTypeDecision:
		return SectorReflective, true
	case MemoryTypeGotcha:
		return SectorProcedural, true
	case MemoryTypePattern:
		return SectorProcedural, true
	default:
		return "", false
	}
}

// RelationshipType is the kind of directed edge between two memories.
type RelationshipType string

const (
	RelSupersedes    RelationshipType = "SUPERSEDES"
	RelContradicts   RelationshipType = "CONTRADICTS"
	RelRelatedTo     RelationshipType = "RELATED_TO"
	RelBuildsOn      RelationshipType = "BUILDS_ON"
	RelConfirms      RelationshipType = "CONFIRMS"
	RelAppliesTo     RelationshipType = "APPLIES_TO"
	RelDependsOn     RelationshipType = "DEPENDS_ON"
	RelAlternativeTo RelationshipType = "ALTERNATIVE_TO"
)

// MinSalience and MaxSalience bound a memory's salience at all times.
const (
	MinSalience = 0.05
	MaxSalience = 1.0
)

// Project is identified by canonical filesystem path.
type Project struct {
	ID        string
	Path      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is a bounded interval of editor activity within one project.
type Session struct {
	ID        string
	ProjectID string
	StartedAt time.Time
	EndedAt   *time.Time
	Summary   *string
	Context   map[string]string
}

// IsEnded reports whether the session is terminal.
func (s *Session) IsEnded() bool {
	return s.EndedAt != nil
}

// Memory is a durable knowledge record.
type Memory struct {
	ID        string
	ProjectID string
	SessionID *string
	SegmentID *string

	Content     string
	Summary     *string
	Context     map[string]string
	ContentHash string // MD5 over Content

	Sector     Sector
	Tier       Tier
	MemoryType *MemoryType

	Simhash uint64

	Importance  float64
	Salience    float64
	AccessCount int
	Confidence  float64

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastAccessed time.Time
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	DeletedAt    *time.Time

	Tags     []string
	Concepts []string
	Files    []string

	IsDeleted bool
}

// IsSuperseded reports whether the memory has been superseded as of now.
func (m *Memory) IsSuperseded(now time.Time) bool {
	return m.ValidUntil != nil && !m.ValidUntil.After(now)
}

// Relationship is a directed edge between two memories.
type Relationship struct {
	ID        int64
	SourceID  string
	TargetID  string
	Type      RelationshipType
	CreatedAt time.Time
}

// SessionMemory links a session to a memory with a usage classification.
type SessionMemory struct {
	SessionID string
	MemoryID  string
	UsageType string // "created" | "reinforced"
	CreatedAt time.Time
}

// SegmentAccumulator is a per-session scratchpad of recent work since the
// last extraction. Persisted (not kept only in process memory) so any
// hook-handler process can read/append it.
type SegmentAccumulator struct {
	SessionID        string
	ProjectID        string
	SegmentID        string
	SegmentStartTS   time.Time
	UserPrompts      []string
	FilesRead        []string
	FilesModified    []string
	Commands         []CommandObservation
	Errors           []string
	Searches         []SearchObservation
	CompletedTasks   []string
	ToolCallCount    int
	LastAssistantMsg *string
	UpdatedAt        time.Time
}

// CommandObservation records a single Bash tool invocation.
type CommandObservation struct {
	Command  string
	ExitCode int
	HasError bool
}

// SearchObservation records a single Grep/Glob tool invocation.
type SearchObservation struct {
	Pattern     string
	ResultCount int
}

// Accumulator caps (§4.6).
const (
	MaxAccumulatorPrompts       = 200
	MaxAccumulatorFilesRead     = 100
	MaxAccumulatorFilesModified = 100
	MaxAccumulatorCommands      = 50
	MaxAccumulatorErrors        = 20
	MaxAccumulatorSearches      = 50
)

// DocumentSourceType is the kind of source a Document was ingested from.
type DocumentSourceType string

const (
	DocSourceText DocumentSourceType = "txt"
	DocSourceMD   DocumentSourceType = "md"
	DocSourceURL  DocumentSourceType = "url"
	DocSourceCode DocumentSourceType = "code"
)

// Document is an ingested external text file, web page, or code file.
type Document struct {
	ID          string
	ProjectID   string
	SourcePath  *string
	SourceURL   *string
	SourceType  DocumentSourceType
	Title       *string
	FullContent string
	Checksum    string // SHA-256
	IsCode      bool
	Language    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentChunk is a contiguous slice of a Document.
type DocumentChunk struct {
	ID             string
	DocumentID     string
	ChunkIndex     int
	Content        string
	StartOffset    int
	EndOffset      int
	TokensEstimate int
	StartLine      int
	EndLine        int
	Symbols        []string
	Language       string
}

// EmbeddingModel tracks a registered embedding provider/model pair.
type EmbeddingModel struct {
	ID         string // "provider:model"
	Provider   string
	Model      string
	Dimensions int
	IsActive   bool
}

// IndexedFile is the per-project record of a scanned file.
type IndexedFile struct {
	ProjectID     string
	Path          string
	Checksum      string
	LastIndexedAt time.Time
	Language      string
	GitignoreHash string
}

// CodeIndexState is a per-project roll-up of indexing activity.
type CodeIndexState struct {
	ProjectID     string
	LastIndexedAt time.Time
	IndexedFiles  int
	Errors        []string
}

// ErrDimensionMismatch indicates a vector dimension mismatch against the
// active embedding model.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (reindex required)", e.Expected, e.Got)
}

// VectorStoreConfig configures the HNSW-backed vector store.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" | "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// VectorResult is a single nearest-neighbor search hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32 // normalized similarity, 0-1
}

// VectorStore provides approximate nearest-neighbor search over embeddings.
// It is the accelerated implementation of the cosine top-K search the
// search engine performs against memory and document-chunk vectors.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// KeywordResult is a single FTS5 keyword-search hit.
type KeywordResult struct {
	OwnerID      string // memory_id or chunk_id
	Rank         float64
	Snippet      string
	MatchedTerms []string
}

// MemoryFilter narrows a List query.
type MemoryFilter struct {
	ProjectID         string
	Sector            *Sector
	Tier              *Tier
	MemoryType        *MemoryType
	MinSalience       *float64
	IncludeDeleted    bool
	IncludeSuperseded bool
	SessionID         *string
	OrderBy           string // "created_at" (default)
	Descending        bool
	Limit             int
	Offset            int
}
