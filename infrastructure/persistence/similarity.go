package persistence

import (
	"math"
	"sort"
)

// cosineSimilarity returns the cosine similarity of two vectors in [-1,1].
// Mismatched dimensions or zero vectors yield 0 so stale rows written under
// a previous model rank last instead of failing the query.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type scored struct {
	index int
	score float64
}

// topKSimilar ranks candidate vectors by cosine similarity to query and
// returns the indices of the k best, most similar first.
func topKSimilar(query []float32, candidates [][]float32, k int) []scored {
	results := make([]scored, 0, len(candidates))
	for i, c := range candidates {
		results = append(results, scored{index: i, score: cosineSimilarity(query, c)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
