package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo/embedding/mock"
)

func TestDeterministic(t *testing.T) {
	ctx := context.Background()
	m := mock.New(16)

	a, err := m.Embed(ctx, "same text")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "same text")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := m.Embed(ctx, "other text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
	assert.Equal(t, 16, m.Dimension())
}

func TestUnitNorm(t *testing.T) {
	m := mock.New(32)
	vec, err := m.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestSetFixed(t *testing.T) {
	m := mock.New(4)
	m.SetFixed("pinned", []float32{1, 2, 3, 4})

	vec, err := m.Embed(context.Background(), "pinned")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, vec)

	// Callers get a copy; mutating it does not poison the pin.
	vec[0] = 99
	again, err := m.Embed(context.Background(), "pinned")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, again)
}
