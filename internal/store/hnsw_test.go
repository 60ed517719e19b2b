package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

func newTestVectorStore(t *testing.T) *HNSWVectorStore {
	t.Helper()
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimensions: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedVectors(t *testing.T, s *HNSWVectorStore) {
	t.Helper()
	err := s.Add(context.Background(), []VectorItem{
		{ID: "a", Vector: []float32{1, 0, 0, 0}, Summary: vehicle.Summary{Make: "Honda", Model: "Civic"}},
		{ID: "b", Vector: []float32{0, 1, 0, 0}, Summary: vehicle.Summary{Make: "Ford", Model: "F-150"}},
		{ID: "c", Vector: []float32{0.9, 0.1, 0, 0}, Summary: vehicle.Summary{Make: "Toyota", Model: "Corolla"}},
	})
	require.NoError(t, err)
}

func TestHNSWVectorStore_SimilaritySearch(t *testing.T) {
	// Given: three vehicles, a and c pointing roughly the same way
	s := newTestVectorStore(t)
	seedVectors(t, s)

	// When: searching near a with limit 2
	hits, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: a then c, with summaries attached
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-4)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
	assert.Equal(t, "Civic", hits[0].Summary.Model)
}

func TestHNSWVectorStore_Empty(t *testing.T) {
	s := newTestVectorStore(t)

	hits, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWVectorStore_DimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t)

	err := s.Add(context.Background(), []VectorItem{{ID: "x", Vector: []float32{1, 0}}})
	var dm DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 2, dm.Got)

	_, err = s.SimilaritySearch(context.Background(), []float32{1}, 1)
	assert.ErrorAs(t, err, &dm)
}

func TestHNSWVectorStore_ReplaceOrphansOldNode(t *testing.T) {
	// Given: a stored as [1,0,0,0]
	s := newTestVectorStore(t)
	seedVectors(t, s)

	// When: a is re-added pointing elsewhere
	err := s.Add(context.Background(), []VectorItem{{ID: "a", Vector: []float32{0, 0, 1, 0}}})
	require.NoError(t, err)

	// Then: the count is unchanged and the old node is an orphan
	assert.Equal(t, 3, s.Count())
	stats := s.Stats()
	assert.Equal(t, 1, stats.Orphans)

	// And: a now matches its new direction
	hits, err := s.SimilaritySearch(context.Background(), []float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestHNSWVectorStore_Delete(t *testing.T) {
	s := newTestVectorStore(t)
	seedVectors(t, s)

	require.NoError(t, s.Delete(context.Background(), []string{"a"}))

	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("c"))
	hits, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "a", h.ID)
	}
}

func TestHNSWVectorStore_SaveAndOpen(t *testing.T) {
	// Given: a saved store
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	s := newTestVectorStore(t)
	seedVectors(t, s)
	require.NoError(t, s.Save(path))

	// When: reopening it
	reopened, err := OpenHNSWVectorStore(path, VectorStoreConfig{Dimensions: 4})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: contents and summaries survive
	assert.Equal(t, 3, reopened.Count())
	hits, err := reopened.SimilaritySearch(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
	assert.Equal(t, "Ford", hits[0].Summary.Make)
}

func TestOpenHNSWVectorStore_Missing(t *testing.T) {
	s, err := OpenHNSWVectorStore(filepath.Join(t.TempDir(), "none.hnsw"), VectorStoreConfig{Dimensions: 4})

	require.NoError(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestOpenHNSWVectorStore_DimensionChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	s := newTestVectorStore(t)
	seedVectors(t, s)
	require.NoError(t, s.Save(path))

	_, err := OpenHNSWVectorStore(path, VectorStoreConfig{Dimensions: 8})

	var dm DimensionMismatchError
	assert.ErrorAs(t, err, &dm)
}

func TestHNSWVectorStore_Closed(t *testing.T) {
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimensions: 4})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.SimilaritySearch(context.Background(), []float32{1, 0, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, s.Count())
}

func TestNewHNSWVectorStore_InvalidDimensions(t *testing.T) {
	_, err := NewHNSWVectorStore(VectorStoreConfig{})
	assert.Error(t, err)
}
