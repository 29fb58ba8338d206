package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cache is a read-through Embedder decorator. Repeated embeds of the same
// text (common for the sentinel probe and for cache-hit questions) skip the
// provider round trip.
//
// Ristretto admits writes asynchronously, so a value may not be visible
// immediately after Set; that only costs an extra provider call.
type Cache struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCache wraps inner with an in-process cache holding up to maxEntries
// embeddings.
func NewCache(inner Embedder, maxEntries int64) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cache{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, or delegates to the wrapped
// provider and caches the result.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

// Wait blocks until pending cache writes are applied. Intended for tests.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close releases the cache's resources.
func (c *Cache) Close() {
	c.cache.Close()
}
