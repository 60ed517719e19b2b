package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/config"
)

// countingEmbedder wraps StaticEmbedder and counts texts sent to it.
type countingEmbedder struct {
	*StaticEmbedder
	texts int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.texts++
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts += len(texts)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_Embed(t *testing.T) {
	// Given: a cache over a counting embedder
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(16)}
	c := NewCachedEmbedder(inner, 10)

	// When: the same query is embedded twice
	first, err := c.Embed(context.Background(), "family suv")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "family suv")
	require.NoError(t, err)

	// Then: the inner embedder ran once
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.texts)
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_ErrorNotCached(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(16), err: errors.New("down")}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.Embed(context.Background(), "family suv")

	assert.Error(t, err)
	assert.Zero(t, c.Len())
}

func TestCachedEmbedder_EmbedBatchOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(16)}
	c := NewCachedEmbedder(inner, 10)
	_, err := c.Embed(context.Background(), "b")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 3, inner.texts) // "b" once, then "a" and "c"
	want, _ := inner.StaticEmbedder.Embed(context.Background(), "c")
	assert.Equal(t, want, vecs[2])
}

func TestCachedEmbedder_Evicts(t *testing.T) {
	c := NewCachedEmbedder(NewStaticEmbedder(4), 2)
	for _, q := range []string{"a", "b", "c"} {
		_, err := c.Embed(context.Background(), q)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Len())
}

func TestNewEmbedder(t *testing.T) {
	t.Run("static is cached", func(t *testing.T) {
		e, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{Provider: "static", Dimensions: 32, CacheSize: 5})
		require.NoError(t, err)

		assert.IsType(t, &CachedEmbedder{}, e)
		assert.Equal(t, 32, e.Dimensions())
		assert.Equal(t, "static", e.ModelName())
	})

	t.Run("negative cache size disables cache", func(t *testing.T) {
		e, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{Provider: "static", CacheSize: -1})
		require.NoError(t, err)

		assert.IsType(t, &StaticEmbedder{}, e)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{Provider: "mlx"})
		assert.ErrorContains(t, err, "unknown embeddings provider")
	})
}
