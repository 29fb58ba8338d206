package memory

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/mnemo-ai/mnemo/embedding"
)

// dimensionProbe is the sentinel embedded once per store lifetime to infer
// the vector dimension when it is not configured.
const dimensionProbe = "dimension probe"

// NewID generates a lexically-sortable unique entry id.
func NewID() string {
	return ulid.Make().String()
}

// admissible reports whether a raw KNN distance counts as a genuine match
// for the given threshold. The boundary is inclusive; non-finite distances
// never match.
func admissible(distance, threshold float64) bool {
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return false
	}
	return distance <= threshold
}

// dimension lazily resolves a store's vector dimension. Every index and
// document in a store must agree on it, so it is fixed at first use.
type dimension struct {
	mu  sync.Mutex
	dim int
}

func (d *dimension) resolve(ctx context.Context, embedder embedding.Embedder, configured int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dim > 0 {
		return d.dim, nil
	}
	if configured > 0 {
		d.dim = configured
		return d.dim, nil
	}

	vec, err := embedder.Embed(ctx, dimensionProbe)
	if err != nil {
		return 0, fmt.Errorf("%w: infer dimension: %v", ErrEmbedding, err)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("embedder returned empty vector for dimension probe")
	}
	d.dim = len(vec)
	return d.dim, nil
}
