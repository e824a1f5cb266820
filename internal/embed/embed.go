// Package embed derives fixed-dimension semantic vectors for function units
// and provides the similarity math the analytics engines share.
package embed

import (
	"context"
	"math"
)

// Embedder is the embedding service contract.
type Embedder interface {
	// Embed returns a fixed-dimension vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the vector size every Embed call returns.
	Dimension() int
}

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// and zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// Mean averages a set of equal-length vectors into one. Used to collapse a
// file's unit vectors into a single file-level vector. Returns nil for empty
// input.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float32, len(vectors[0]))
	n := 0
	for _, v := range vectors {
		if len(v) != len(out) {
			continue
		}
		for i := range v {
			out[i] += v[i]
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range out {
		out[i] /= float32(n)
	}
	return out
}
