package vectordb

import (
	"math"
	"sort"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rank scores chunks against query and returns the best topK, best first.
// Ties keep insertion order.
func rank(query []float32, chunks []entities.Chunk, topK int) []entities.SearchResult {
	results := make([]entities.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		score := cosineSimilarity(query, c.Embedding)
		if math.IsNaN(score) {
			continue
		}
		results = append(results, entities.SearchResult{Chunk: c, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
