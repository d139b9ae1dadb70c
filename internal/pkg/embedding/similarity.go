package embedding

import "math"

// CosineSimilarity calculates the cosine similarity between two vectors.
// Mismatched dimensions or zero vectors yield 0 rather than an error; a
// malformed stored embedding should score as irrelevant, not fail retrieval.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
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
