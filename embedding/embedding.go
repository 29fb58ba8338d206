// Package embedding defines the text-embedding capability the memory tiers
// depend on, along with a caching decorator. Concrete providers live in
// subpackages (openai for production, mock for tests).
package embedding

import "context"

// Embedder converts text into a fixed-length float vector. The dimension is
// fixed per deployment; stores that are not configured with an explicit
// dimension infer it by embedding a sentinel string once.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts a plain function to the Embedder interface.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}
