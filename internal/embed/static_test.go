package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(64)

	a, err := e.Embed(context.Background(), "Honda Civic sedan")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "honda civic SEDAN")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	v, err := NewStaticEmbedder(0).Embed(context.Background(), "2021 Toyota RAV4")

	require.NoError(t, err)
	assert.Len(t, v, StaticDimensions)
	assert.InDelta(t, 1.0, math.Sqrt(cosine(v, v)), 1e-5)
}

func TestStaticEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewStaticEmbedder(256)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "ford pickup truck")
	truck, _ := e.Embed(ctx, "2019 Ford F-150 pickup truck crew cab")
	sedan, _ := e.Embed(ctx, "2021 Honda Civic sedan commuter")

	assert.Greater(t, cosine(query, truck), cosine(query, sedan))
}

func TestStaticEmbedder_EmptyText(t *testing.T) {
	v, err := NewStaticEmbedder(8).Embed(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestStaticEmbedder_Closed(t *testing.T) {
	e := NewStaticEmbedder(8)
	require.NoError(t, e.Close())

	_, err := e.EmbedBatch(context.Background(), []string{"x"})

	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, e.Available(context.Background()))
}
