package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// StaticEmbedder derives vectors deterministically from the input text. It
// substitutes for the remote service in tests and in offline runs where no
// API key is configured. Identical text always maps to an identical vector,
// so similarity comparisons remain stable across runs.
type StaticEmbedder struct {
	Dim int
}

// Dimension returns the configured vector size.
func (s *StaticEmbedder) Dimension() int {
	return s.Dim
}

// Embed hashes the text into a pseudo-random but deterministic vector.
func (s *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.Dim)
	seed := sha256.Sum256([]byte(text))
	state := binary.BigEndian.Uint64(seed[:8])
	for i := range vec {
		// xorshift64 over the text digest
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = float32(int64(state%2000)-1000) / 1000
	}
	return vec, nil
}
