// Package mock provides a deterministic Embedder for tests. Identical input
// text always produces an identical vector, which is what the cache-hit
// tests rely on.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Embedder generates hash-seeded pseudo-random unit vectors.
type Embedder struct {
	dim int

	mu    sync.Mutex
	fixed map[string][]float32
}

// New creates a mock embedder producing vectors of the given dimension.
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = 384
	}
	return &Embedder{
		dim:   dim,
		fixed: make(map[string][]float32),
	}
}

// SetFixed pins the vector returned for a specific input, letting tests
// construct exact distances between a query and stored entries.
func (m *Embedder) SetFixed(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed[text] = vec
}

// Embed returns the pinned vector for text if one was set, otherwise a
// deterministic unit vector derived from the text's hash.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	if vec, ok := m.fixed[text]; ok {
		m.mu.Unlock()
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}
	m.mu.Unlock()

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimension returns the vector length produced by Embed.
func (m *Embedder) Dimension() int {
	return m.dim
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
