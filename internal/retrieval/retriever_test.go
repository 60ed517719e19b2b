package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeEmbedder struct {
	err  error
	text string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeVectors struct {
	hits []VectorHit
	err  error
}

func (f *fakeVectors) SimilaritySearch(_ context.Context, _ []float32, _ int) ([]VectorHit, error) {
	return f.hits, f.err
}

type fakeFullText struct {
	hits     []KeywordHit
	err      error
	delay    time.Duration
	text     string
	synonyms []string
}

func (f *fakeFullText) KeywordSearch(ctx context.Context, text string, synonyms []string, _ int) ([]KeywordHit, error) {
	f.text, f.synonyms = text, synonyms
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.hits, f.err
}

type fakeStructured struct {
	hits    []FilterHit
	err     error
	filters Filters
}

func (f *fakeStructured) FilterSearch(_ context.Context, filters Filters, _ int) ([]FilterHit, error) {
	f.filters = filters
	return f.hits, f.err
}

func summary(model string) vehicle.Summary {
	return vehicle.Summary{Year: 2020, Make: "Ford", Model: model}
}

func ids(list []Candidate) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}

// =============================================================================
// Retrieve
// =============================================================================

func TestRetrieve_AllSourcesSucceed(t *testing.T) {
	// Given: three healthy sources
	emb := &fakeEmbedder{}
	vec := &fakeVectors{hits: []VectorHit{
		{ID: "v2", Similarity: 0.7, Summary: summary("Ranger")},
		{ID: "v1", Similarity: 0.9, Summary: summary("F-150")},
	}}
	kw := &fakeFullText{hits: []KeywordHit{{ID: "v3", Score: 4.2}}}
	flt := &fakeStructured{hits: []FilterHit{{ID: "v1"}, {ID: "v4"}}}
	r := NewRetriever(emb, vec, kw, flt)

	// When: retrieving
	res, err := r.Retrieve(context.Background(), Request{
		QueryText:    "pickup truck",
		ExpandedText: "affordable pickup truck",
		Synonyms:     []string{"pickup"},
		Filters:      ParseFilters(map[string]any{"price_max": 25000}),
		Limit:        10,
	})

	// Then: each list is ranked 1..n and no source is degraded
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, ids(res.Vector.Value))
	assert.Equal(t, 1, res.Vector.Value[0].Rank)
	assert.Equal(t, 2, res.Vector.Value[1].Rank)
	assert.Equal(t, []string{"v3"}, ids(res.Keyword.Value))
	assert.Equal(t, []string{"v1", "v4"}, ids(res.Filter.Value))
	for _, c := range res.Filter.Value {
		assert.Equal(t, 1.0, c.Score)
	}
	assert.False(t, res.Vector.IsDegraded())
	assert.False(t, res.Keyword.IsDegraded())
	assert.False(t, res.Filter.IsDegraded())
	assert.Equal(t, 5, res.Total())

	// And: collaborators received the request pieces
	assert.Equal(t, "pickup truck", emb.text)
	assert.Equal(t, "affordable pickup truck", kw.text)
	assert.Equal(t, []string{"pickup"}, kw.synonyms)
	require.NotNil(t, flt.filters.PriceMax)
	assert.Equal(t, 25000.0, *flt.filters.PriceMax)
}

func TestRetrieve_PartialFailureDegradesOneSource(t *testing.T) {
	// Given: a failing embedder and healthy text/filter stores
	r := NewRetriever(
		&fakeEmbedder{err: errors.New("ollama down")},
		&fakeVectors{},
		&fakeFullText{hits: []KeywordHit{{ID: "v1", Score: 1}}},
		&fakeStructured{hits: []FilterHit{{ID: "v2"}}},
	)

	// When: retrieving
	res, err := r.Retrieve(context.Background(), Request{Limit: 10})

	// Then: only the vector source is degraded and it contributes nothing
	require.NoError(t, err)
	assert.True(t, res.Vector.IsDegraded())
	assert.Empty(t, res.Vector.Value)
	assert.Equal(t, oerrors.ErrCodeEmbeddingFailed, oerrors.GetCode(res.Vector.Reason))
	assert.Equal(t, []string{"v1"}, ids(res.Keyword.Value))
	assert.Equal(t, []string{"v2"}, ids(res.Filter.Value))
}

func TestRetrieve_AllFailReturnsRetrievalError(t *testing.T) {
	vecErr := errors.New("vector down")
	r := NewRetriever(&fakeEmbedder{}, &fakeVectors{err: vecErr},
		&fakeFullText{err: errors.New("fts down")},
		&fakeStructured{err: errors.New("db down")})

	res, err := r.Retrieve(context.Background(), Request{Limit: 10})

	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, vecErr)
	var rerr *RetrievalError
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Error(), "keyword: ")
	assert.Contains(t, rerr.Error(), "filter: ")
}

func TestRetrieve_AllEmptyIsNotAnError(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, &fakeVectors{}, &fakeFullText{}, &fakeStructured{})

	res, err := r.Retrieve(context.Background(), Request{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 0, res.Total())
	assert.NotNil(t, res.Vector.Value)
	assert.False(t, res.Keyword.IsDegraded())
}

func TestRetrieve_UnconfiguredSourcesFail(t *testing.T) {
	r := NewRetriever(nil, nil, &fakeFullText{hits: []KeywordHit{{ID: "v1"}}}, nil)

	res, err := r.Retrieve(context.Background(), Request{Limit: 5})

	require.NoError(t, err)
	assert.ErrorIs(t, res.Vector.Reason, ErrNotConfigured)
	assert.ErrorIs(t, res.Filter.Reason, ErrNotConfigured)
}

func TestRetrieve_UnfilteredRequestStillQueriesStructured(t *testing.T) {
	// Given: no caller or extracted filters
	flt := &fakeStructured{hits: []FilterHit{{ID: "newest"}, {ID: "older"}}}
	r := NewRetriever(nil, nil, nil, flt)

	// When: retrieving
	res, err := r.Retrieve(context.Background(), Request{ExpandedText: "truck", Limit: 5})

	// Then: the store sees an empty filter set and its listing is a real,
	// non-degraded source
	require.NoError(t, err)
	assert.True(t, flt.filters.IsEmpty())
	assert.False(t, res.Filter.IsDegraded())
	assert.Equal(t, []string{"newest", "older"}, ids(res.Filter.Value))
}

func TestRetrieve_TruncatesToLimit(t *testing.T) {
	hits := make([]FilterHit, 8)
	for i := range hits {
		hits[i] = FilterHit{ID: string(rune('a' + i))}
	}
	r := NewRetriever(nil, nil, nil, &fakeStructured{hits: hits})

	res, err := r.Retrieve(context.Background(), Request{Limit: 3})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(res.Filter.Value))
}

func TestRetrieve_SubSearchTimeoutOnlyAffectsSlowSource(t *testing.T) {
	// Given: a keyword store slower than the sub-search timeout
	r := NewRetriever(&fakeEmbedder{}, &fakeVectors{hits: []VectorHit{{ID: "v1", Similarity: 1}}},
		&fakeFullText{delay: time.Second},
		&fakeStructured{},
		WithSubSearchTimeout(20*time.Millisecond))

	// When: retrieving
	start := time.Now()
	res, err := r.Retrieve(context.Background(), Request{Limit: 5})

	// Then: the slow source times out, the rest succeed
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, res.Keyword.IsDegraded())
	assert.ErrorIs(t, res.Keyword.Reason, context.DeadlineExceeded)
	assert.Equal(t, []string{"v1"}, ids(res.Vector.Value))
}

func TestRetrieve_OpenBreakerSkipsSource(t *testing.T) {
	cb := oerrors.NewCircuitBreaker("keyword", oerrors.WithMaxFailures(1), oerrors.WithResetTimeout(time.Hour))
	cb.RecordFailure()
	kw := &fakeFullText{hits: []KeywordHit{{ID: "v1"}}}
	r := NewRetriever(nil, nil, kw, &fakeStructured{}, WithCircuitBreaker(SourceKeyword, cb))

	res, err := r.Retrieve(context.Background(), Request{ExpandedText: "truck", Limit: 5})

	require.NoError(t, err)
	assert.ErrorIs(t, res.Keyword.Reason, oerrors.ErrCircuitOpen)
	assert.Empty(t, kw.text)
}
