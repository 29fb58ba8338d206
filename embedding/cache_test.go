package embedding_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/embedding"
)

type countingEmbedder struct {
	calls atomic.Int64
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	cache, err := embedding.NewCache(inner, 128)
	require.NoError(t, err)
	defer cache.Close()

	first, err := cache.Embed(ctx, "hello")
	require.NoError(t, err)
	cache.Wait()

	second, err := cache.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, inner.calls.Load(), "second embed is served from cache")

	_, err = cache.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestCacheDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{err: errors.New("provider down")}
	cache, err := embedding.NewCache(inner, 128)
	require.NoError(t, err)
	defer cache.Close()

	_, err = cache.Embed(ctx, "hello")
	require.Error(t, err)

	inner.err = nil
	vec, err := cache.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, vec, "failures are retried, not cached")
}

func TestFuncAdapter(t *testing.T) {
	var f embedding.Embedder = embedding.Func(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 2, 3}, nil
	})
	vec, err := f.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}
