package search

import (
	"sort"

	"github.com/ccmemory/ccmemory/internal/store"
)

// Fusion combines keyword and vector hit lists into a single ranked list
// using a weighted blend:
//
//	score = 0.4×normalized_keyword + 0.6×cosine_similarity + sector_bonus(sector) + 0.1×salience
type Fusion struct {
	KeywordWeight float64
	VectorWeight  float64
	SalienceWeight float64
}

// DefaultFusion returns the spec's fixed weights.
func DefaultFusion() *Fusion {
	return &Fusion{KeywordWeight: 0.4, VectorWeight: 0.6, SalienceWeight: 0.1}
}

// Fuse takes the union of up to N=3×limit hits from each side (the caller
// is responsible for fetching that window), merges them by memory ID, and
// scores every merged candidate. Memories present on only one side still
// get scored using their single available term.
func (f *Fusion) Fuse(keyword []*store.KeywordResult, vector []*store.VectorResult, memories map[string]*store.Memory) []*Result {
	candidates := make(map[string]*fusionCandidate)

	if len(keyword) > 0 {
		maxRank := keyword[0].Rank
		minRank := keyword[0].Rank
		for _, k := range keyword {
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
		for _, k := range keyword {
			c := candidates[k.OwnerID]
			if c == nil {
				c = &fusionCandidate{memoryID: k.OwnerID}
				candidates[k.OwnerID] = c
			}
			// bm25() in SQLite is more-negative-is-better; normalize so higher is better.
			c.keywordRank = (maxRank - k.Rank) / denom
			c.hasKeyword = true
		}
	}

	for _, v := range vector {
		c := candidates[v.ID]
		if c == nil {
			c = &fusionCandidate{memoryID: v.ID}
			candidates[v.ID] = c
		}
		c.cosine = float64(v.Score)
		c.hasVector = true
	}

	results := make([]*Result, 0, len(candidates))
	for id, c := range candidates {
		m := memories[id]
		if m == nil {
			continue
		}
		bonus := SectorBonus[m.Sector]
		score := f.KeywordWeight*c.keywordRank + f.VectorWeight*c.cosine + bonus + f.SalienceWeight*m.Salience
		results = append(results, &Result{
			Memory:       m,
			Score:        score,
			KeywordScore: c.keywordRank,
			VectorScore:  c.cosine,
			IsSuperseded: m.ValidUntil != nil,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return recencyTiebreak(results[i].Memory, results[j].Memory)
	})

	return results
}
