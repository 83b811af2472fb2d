// Package search implements the hybrid keyword+vector search engine over
// memories and, scoped separately, document/code chunks.
package search

import (
	"github.com/ccmemory/ccmemory/internal/store"
)

// Mode selects which half of the hybrid pipeline runs.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Options are the inputs to Engine.Search.
type Options struct {
	Query             string
	ProjectID         string
	SessionID         *string
	Sector            *store.Sector
	MemoryType        *store.MemoryType
	Tier              *store.Tier
	MinSalience       *float64
	IncludeSuperseded bool
	Limit             int
	Mode              Mode
}

// WithDefaults fills in Limit/Mode when unset.
func (o Options) WithDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.Mode == "" {
		o.Mode = ModeHybrid
	}
	return o
}

// Result is one scored memory returned from Search, enriched with the
// attachments §4.5 requires (relationship count, supersede flag, source
// session summary).
type Result struct {
	Memory              *store.Memory
	Score               float64
	KeywordScore         float64
	VectorScore          float64
	OutgoingRelCount    int
	IsSuperseded        bool
	SourceSessionSummary *string
}

// TimelineEntry is one row of a Timeline response.
type TimelineEntry struct {
	Memory         *store.Memory
	SessionSummary *string
}

// TimelineResult is the anchor plus surrounding entries.
type TimelineResult struct {
	Before []*TimelineEntry
	Anchor *TimelineEntry
	After  []*TimelineEntry
}

// SectorBonus is the fixed per-sector ranking bonus table the hybrid fusion
// formula adds on top of the keyword/vector blend — emotional and
// reflective memories get a small edge, matching the spec's description of
// "sector_bonus(sector) ... emotional/reflective slightly higher".
var SectorBonus = map[store.Sector]float64{
	store.SectorEmotional:  0.05,
	store.SectorReflective: 0.05,
	store.SectorEpisodic:   0.0,
	store.SectorSemantic:   0.0,
	store.SectorProcedural: 0.0,
}

// fusionCandidate is an intermediate per-memory accumulator used while
// merging keyword and vector hit lists before scoring.
type fusionCandidate struct {
	memoryID     string
	keywordRank  float64
	hasKeyword   bool
	cosine       float64
	hasVector    bool
}

// recencyTiebreak orders by created_at descending when fused scores are equal.
func recencyTiebreak(a, b *store.Memory) bool {
	return a.CreatedAt.After(b.CreatedAt)
}
