package search

import (
	"context"
	"sort"

	"github.com/ccmemory/ccmemory/internal/embed"
	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/store"
)

// ChunkResult is one scored document/code chunk hit, carrying the parent
// document metadata docs_search/code_search need to render and filter
// without a second lookup.
type ChunkResult struct {
	Chunk      *store.DocumentChunk
	ProjectID  string
	IsCode     bool
	Language   *string
	SourcePath *string
	Title      *string
	Score      float64
}

// ChunkOptions are the inputs to ChunkEngine.Search.
type ChunkOptions struct {
	Query     string
	ProjectID string
	// OnlyCode, when true, restricts results to code chunks (code_search);
	// when false, restricts to non-code chunks (docs_search).
	OnlyCode bool
	// Language, if set, further restricts code_search results.
	Language string
	Limit    int
	Mode     Mode
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.Mode == "" {
		o.Mode = ModeHybrid
	}
	return o
}

// ChunkEngine implements hybrid keyword+vector search over document/code
// chunks, the same blend Engine runs over memories (§4.5) minus the
// salience/sector terms chunks don't carry.
type ChunkEngine struct {
	db       *store.DB
	vectors  store.VectorStore
	embedder embed.Embedder
	weights  ChunkFusionWeights
}

// ChunkFusionWeights mirrors Fusion's keyword/vector blend for chunks,
// which have no salience or sector to add a bonus term for.
type ChunkFusionWeights struct {
	KeywordWeight float64
	VectorWeight  float64
}

// DefaultChunkFusionWeights reuses the spec's keyword/vector split.
func DefaultChunkFusionWeights() ChunkFusionWeights {
	return ChunkFusionWeights{KeywordWeight: 0.4, VectorWeight: 0.6}
}

// NewChunkEngine wires a ChunkEngine from its dependencies. vectors is the
// document/code vector store, distinct from Engine's memory vector store.
func NewChunkEngine(db *store.DB, vectors store.VectorStore, embedder embed.Embedder) *ChunkEngine {
	return &ChunkEngine{db: db, vectors: vectors, embedder: embedder, weights: DefaultChunkFusionWeights()}
}

// Search runs keyword, semantic, or hybrid retrieval over chunks belonging
// to opts.ProjectID, then filters by IsCode/Language.
func (e *ChunkEngine) Search(ctx context.Context, opts ChunkOptions) ([]*ChunkResult, error) {
	opts = opts.withDefaults()
	if opts.Query == "" {
		return nil, ccerrors.New(ccerrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}

	window := opts.Limit * 3
	projectIDs := []string{opts.ProjectID}

	var kwHits []*store.KeywordResult
	var vecHits []*store.VectorResult
	var err error

	if opts.Mode != ModeSemantic {
		kwHits, err = e.db.SearchChunksFTS(ctx, projectIDs, opts.Query, window)
		if err != nil {
			return nil, err
		}
	}
	if opts.Mode != ModeKeyword {
		vecHits, err = e.vectorSearch(ctx, opts.Query, window)
		if err != nil {
			return nil, err
		}
	}

	ids := append(chunkOwnerIDs(kwHits), chunkVectorIDs(vecHits)...)
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	metas, err := e.db.ChunksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.ChunkWithDocument, len(metas))
	for _, m := range metas {
		byID[m.Chunk.ID] = m
	}

	results := e.fuse(kwHits, vecHits, byID)
	results = filterChunks(results, opts)

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (e *ChunkEngine) fuse(kwHits []*store.KeywordResult, vecHits []*store.VectorResult, byID map[string]*store.ChunkWithDocument) []*ChunkResult {
	type candidate struct {
		keywordRank float64
		cosine      float64
		hasKeyword  bool
		hasVector   bool
	}
	candidates := make(map[string]*candidate)

	if len(kwHits) > 0 {
		maxRank, minRank := kwHits[0].Rank, kwHits[0].Rank
		for _, k := range kwHits {
			if k.Rank > maxRank {
				maxRank = k.Rank
			}
			if k.Rank < minRank {
				minRank = k.Rank
			}
		}
		denom := maxRank - minRank
		if denom == 0 {
			denom = 1
		}
		for _, k := range kwHits {
			c := candidates[k.OwnerID]
			if c == nil {
				c = &candidate{}
				candidates[k.OwnerID] = c
			}
			c.keywordRank = (maxRank - k.Rank) / denom
			c.hasKeyword = true
		}
	}

	for _, v := range vecHits {
		c := candidates[v.ID]
		if c == nil {
			c = &candidate{}
			candidates[v.ID] = c
		}
		c.cosine = float64(v.Score)
		c.hasVector = true
	}

	out := make([]*ChunkResult, 0, len(candidates))
	for id, c := range candidates {
		meta := byID[id]
		if meta == nil {
			continue
		}
		score := e.weights.KeywordWeight*c.keywordRank + e.weights.VectorWeight*c.cosine
		out = append(out, &ChunkResult{
			Chunk:      meta.Chunk,
			ProjectID:  meta.ProjectID,
			IsCode:     meta.IsCode,
			Language:   meta.Language,
			SourcePath: meta.SourcePath,
			Title:      meta.Title,
			Score:      score,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	return out
}

func (e *ChunkEngine) vectorSearch(ctx context.Context, query string, k int) ([]*store.VectorResult, error) {
	if e.embedder == nil || e.vectors == nil {
		return nil, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, ccerrors.EmbeddingUnavailable("query embedding failed", err)
	}
	return e.vectors.Search(ctx, vec, k)
}

func filterChunks(results []*ChunkResult, opts ChunkOptions) []*ChunkResult {
	out := make([]*ChunkResult, 0, len(results))
	for _, r := range results {
		if r.ProjectID != opts.ProjectID {
			continue
		}
		if r.IsCode != opts.OnlyCode {
			continue
		}
		if opts.Language != "" && (r.Language == nil || *r.Language != opts.Language) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func chunkOwnerIDs(hits []*store.KeywordResult) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.OwnerID
	}
	return out
}

func chunkVectorIDs(hits []*store.VectorResult) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}
