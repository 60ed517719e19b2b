package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/config"
	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/expand"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/fusion"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/rerank"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/stage"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/telemetry"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeLLM struct {
	payload string
	err     error
}

func (f *fakeLLM) Extract(context.Context, string) (string, error) {
	return f.payload, f.err
}

type fakeEmbedder struct{ text string }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.text = text
	return []float32{1, 0, 0}, nil
}

type fakeVectors struct {
	hits []retrieval.VectorHit
	err  error
}

func (f *fakeVectors) SimilaritySearch(context.Context, []float32, int) ([]retrieval.VectorHit, error) {
	return f.hits, f.err
}

type fakeFullText struct {
	hits     []retrieval.KeywordHit
	err      error
	text     string
	synonyms []string
}

func (f *fakeFullText) KeywordSearch(_ context.Context, text string, synonyms []string, _ int) ([]retrieval.KeywordHit, error) {
	f.text, f.synonyms = text, synonyms
	return f.hits, f.err
}

type fakeStructured struct {
	hits    []retrieval.FilterHit
	err     error
	filters retrieval.Filters
	limit   int
}

func (f *fakeStructured) FilterSearch(_ context.Context, filters retrieval.Filters, limit int) ([]retrieval.FilterHit, error) {
	f.filters, f.limit = filters, limit
	return f.hits, f.err
}

type countingScorer struct {
	mu    sync.Mutex
	calls int
	logit map[string]float64
}

func (s *countingScorer) ScoreBatch(_ context.Context, _ string, docs []string) ([]float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = s.logit[d]
	}
	return out, nil
}

type recorder struct {
	mu     sync.Mutex
	events []telemetry.SearchEvent
}

func (r *recorder) RecordSearch(e telemetry.SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// spyStages replace whole stages when a test needs to observe their inputs.
type spyExpander struct {
	calls int
	out   stage.Outcome[expand.ExpandedQuery]
	hook  func()
}

func (s *spyExpander) Expand(_ context.Context, query string) stage.Outcome[expand.ExpandedQuery] {
	s.calls++
	if s.hook != nil {
		s.hook()
	}
	if s.out.Value.Expanded == "" {
		return stage.Ok(expand.Fallback(query))
	}
	return s.out
}

type spyRetriever struct {
	req    retrieval.Request
	result *retrieval.Result
	err    error
}

func (s *spyRetriever) Retrieve(_ context.Context, req retrieval.Request) (*retrieval.Result, error) {
	s.req = req
	if s.result == nil && s.err == nil {
		return &retrieval.Result{}, nil
	}
	return s.result, s.err
}

type spyReranker struct {
	calls  int
	topK   int
	budget time.Duration
}

func (s *spyReranker) Rerank(_ context.Context, _ string, cands []fusion.Candidate, topK int, budget time.Duration) stage.Outcome[[]rerank.Candidate] {
	s.calls++
	s.topK, s.budget = topK, budget
	return stage.Ok([]rerank.Candidate{})
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func sum(model string, price float64) vehicle.Summary {
	return vehicle.Summary{Year: 2021, Make: "Ford", Model: model, Price: price, Condition: "used"}
}

// pipeline wires real stages over fake collaborators.
type pipeline struct {
	llm        *fakeLLM
	embedder   *fakeEmbedder
	vectors    *fakeVectors
	fullText   *fakeFullText
	structured *fakeStructured
	scorer     *countingScorer
	metrics    *recorder
	orch       *Orchestrator
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		llm: &fakeLLM{payload: `{"expanded_query":"affordable pickup truck","synonyms":["pickup"],` +
			`"extracted_filters":{"price_max":25000,"make":"ford"},"confidence":0.8}`},
		embedder: &fakeEmbedder{},
		vectors: &fakeVectors{hits: []retrieval.VectorHit{
			{ID: "v1", Similarity: 0.9, Summary: sum("F-150", 24000)},
			{ID: "v2", Similarity: 0.8, Summary: sum("Ranger", 22000)},
			{ID: "v3", Similarity: 0.7, Summary: sum("Maverick", 21000)},
		}},
		fullText: &fakeFullText{hits: []retrieval.KeywordHit{
			{ID: "v2", Score: 3, Summary: sum("Ranger", 22000)},
			{ID: "v1", Score: 2, Summary: sum("F-150", 24000)},
		}},
		structured: &fakeStructured{},
		scorer:     &countingScorer{logit: map[string]float64{}},
		metrics:    &recorder{},
	}

	expander := expand.New(p.llm, expand.WithCache(expand.NewMemoryCache(16, time.Hour)))
	retriever := retrieval.NewRetriever(p.embedder, p.vectors, p.fullText, p.structured)
	reranker := rerank.New(p.scorer)

	orch, err := NewOrchestrator(expander, retriever, reranker, DefaultConfig(), WithMetrics(p.metrics))
	require.NoError(t, err)
	p.orch = orch
	return p
}

func resultIDs(results []rerank.Candidate) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

// =============================================================================
// Construction
// =============================================================================

func TestNewOrchestrator_NilDependencies(t *testing.T) {
	_, err := NewOrchestrator(nil, &spyRetriever{}, &spyReranker{}, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = NewOrchestrator(&spyExpander{}, nil, &spyReranker{}, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = NewOrchestrator(&spyExpander{}, &spyRetriever{}, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestConfigFrom(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Search.TotalBudget = "750ms"
	cfg.Fusion.FilterWeight = 0

	got, err := ConfigFrom(cfg)

	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, got.TotalBudget)
	assert.Equal(t, fusion.Weights{Vector: 0.5, Keyword: 0.3, Filter: 0}, got.Weights)
	assert.Equal(t, 60, got.RRFConstant)
	assert.Equal(t, 50, got.InitialRetrievalLimit)
}

// =============================================================================
// Happy path
// =============================================================================

func TestSearch_EndToEnd(t *testing.T) {
	// Given: a pipeline whose scorer prefers the Maverick
	p := newPipeline(t)
	p.scorer.logit[vehicle.BuildVehicleText(sum("Maverick", 21000), true)] = 4

	// When: searching
	resp, err := p.orch.Search(context.Background(), Request{Query: "  cheap truck ", TopK: 2})

	// Then: the request runs to DONE with reranked results
	require.NoError(t, err)
	assert.Equal(t, StateDone, resp.State)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "cheap truck", resp.Query)
	assert.False(t, resp.Degraded.Any())
	assert.Equal(t, 3, resp.TotalCandidates)
	assert.Equal(t, []string{"v3", "v1"}, resultIDs(resp.Results))
	assert.InDelta(t, rerank.Sigmoid(4), resp.Results[0].RelevanceScore, 1e-12)

	// And: the expansion drove the keyword and vector sub-searches
	require.NotNil(t, resp.ExpandedQuery)
	assert.Equal(t, "affordable pickup truck", resp.ExpandedQuery.Expanded)
	assert.Equal(t, "affordable pickup truck", p.fullText.text)
	assert.Equal(t, []string{"pickup"}, p.fullText.synonyms)
	assert.Equal(t, "affordable pickup truck", p.embedder.text)

	// And: the breadth defaults to twice topK
	assert.Equal(t, 4, p.structured.limit)

	// And: one metrics event was recorded
	require.Len(t, p.metrics.events, 1)
	assert.Equal(t, resp.RequestID, p.metrics.events[0].RequestID)
	assert.Equal(t, 2, p.metrics.events[0].ResultCount)
	assert.False(t, p.metrics.events[0].Failed)
}

func TestSearch_CallerFiltersOverrideExtracted(t *testing.T) {
	p := newPipeline(t)

	_, err := p.orch.Search(context.Background(), Request{
		Query:   "cheap truck",
		Filters: map[string]any{"price_max": 30000, "year_min": 2019},
	})

	require.NoError(t, err)
	require.NotNil(t, p.structured.filters.PriceMax)
	assert.Equal(t, 30000.0, *p.structured.filters.PriceMax)
	require.NotNil(t, p.structured.filters.YearMin)
	assert.Equal(t, 2019, *p.structured.filters.YearMin)
	assert.Equal(t, "ford", p.structured.filters.Make)
}

func TestSearch_FusedOrderFollowsWeightedRanks(t *testing.T) {
	// Given: a scorer that scores everything equally
	p := newPipeline(t)

	// When: searching
	resp, err := p.orch.Search(context.Background(), Request{Query: "truck"})

	// Then: equal relevance keeps the fused order v1 (0.5/61+0.3/62) > v2 > v3
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2", "v3"}, resultIDs(resp.Results))
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.OriginalRank)
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestSearch_EmptyQuery(t *testing.T) {
	expander := &spyExpander{}
	orch, err := NewOrchestrator(expander, &spyRetriever{}, &spyReranker{}, DefaultConfig())
	require.NoError(t, err)

	for _, q := range []string{"", "   \t"} {
		resp, err := orch.Search(context.Background(), Request{Query: q})

		assert.Nil(t, resp)
		assert.Equal(t, oerrors.ErrCodeQueryEmpty, oerrors.GetCode(err))
		assert.False(t, errors.Is(err, retrieval.ErrRetrieval))
	}
	assert.Zero(t, expander.calls)
}

func TestSearch_TopKClamped(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{0, DefaultTopK},
		{-3, DefaultTopK},
		{1, 1},
		{500, MaxTopK},
	}
	for _, tt := range tests {
		retriever := &spyRetriever{}
		reranker := &spyReranker{}
		orch, err := NewOrchestrator(&spyExpander{}, retriever, reranker, DefaultConfig())
		require.NoError(t, err)

		_, err = orch.Search(context.Background(), Request{Query: "suv", TopK: tt.requested})

		require.NoError(t, err)
		assert.Equal(t, tt.want, reranker.topK)
		assert.Equal(t, 2*tt.want, retriever.req.Limit)
	}
}

func TestSearch_FixedRetrievalLimit(t *testing.T) {
	retriever := &spyRetriever{}
	cfg := DefaultConfig()
	cfg.RetrievalLimit = 75
	orch, err := NewOrchestrator(&spyExpander{}, retriever, &spyReranker{}, cfg)
	require.NoError(t, err)

	_, err = orch.Search(context.Background(), Request{Query: "suv", TopK: 5})

	require.NoError(t, err)
	assert.Equal(t, 75, retriever.req.Limit)
}

// =============================================================================
// Failure and degradation
// =============================================================================

func TestSearch_AllSourcesFail(t *testing.T) {
	// Given: every sub-search fails
	p := newPipeline(t)
	p.vectors.err = errors.New("vector down")
	p.fullText.err = errors.New("fts down")
	p.structured.err = errors.New("catalog down")

	// When: searching
	resp, err := p.orch.Search(context.Background(), Request{Query: "truck"})

	// Then: a RetrievalError surfaces and nothing was reranked
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, retrieval.ErrRetrieval)
	var re *retrieval.RetrievalError
	require.True(t, errors.As(err, &re))
	assert.Zero(t, p.scorer.calls)

	require.Len(t, p.metrics.events, 1)
	assert.True(t, p.metrics.events[0].Failed)
	assert.Len(t, p.metrics.events[0].Degraded, 3)
}

func TestSearch_NoRerankAfterRetrievalFailure(t *testing.T) {
	reranker := &spyReranker{}
	orch, err := NewOrchestrator(&spyExpander{},
		&spyRetriever{err: &retrieval.RetrievalError{Vector: errors.New("x")}}, reranker, DefaultConfig())
	require.NoError(t, err)

	_, err = orch.Search(context.Background(), Request{Query: "truck"})

	assert.ErrorIs(t, err, retrieval.ErrRetrieval)
	assert.Zero(t, reranker.calls)
}

func TestSearch_ForeignRetrieverErrorIsWrapped(t *testing.T) {
	cause := errors.New("boom")
	orch, err := NewOrchestrator(&spyExpander{}, &spyRetriever{err: cause}, &spyReranker{}, DefaultConfig())
	require.NoError(t, err)

	_, err = orch.Search(context.Background(), Request{Query: "truck"})

	assert.ErrorIs(t, err, retrieval.ErrRetrieval)
	assert.ErrorIs(t, err, cause)
}

func TestSearch_AllSourcesEmpty(t *testing.T) {
	// Given: every sub-search succeeds with nothing
	p := newPipeline(t)
	p.vectors.hits = nil
	p.fullText.hits = nil

	// When: searching
	resp, err := p.orch.Search(context.Background(), Request{Query: "amphibious sedan"})

	// Then: empty results, the scorer was never called, nothing degraded
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Zero(t, resp.TotalCandidates)
	assert.Zero(t, p.scorer.calls)
	assert.False(t, resp.Degraded.Any())
	assert.Equal(t, StateDone, resp.State)
}

func TestSearch_DegradedFlags(t *testing.T) {
	// Given: the LLM is down and the keyword store fails
	p := newPipeline(t)
	p.llm.err = errors.New("connection refused")
	p.fullText.err = errors.New("index corrupt")

	// When: searching
	resp, err := p.orch.Search(context.Background(), Request{Query: "cheap truck"})

	// Then: the request still completes with the right flags
	require.NoError(t, err)
	assert.Equal(t, Degraded{Expansion: true, Keyword: true}, resp.Degraded)
	assert.Nil(t, resp.ExpandedQuery)
	assert.Equal(t, "cheap truck", p.embedder.text)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, []telemetry.Stage{telemetry.StageExpansion, telemetry.StageKeyword},
		p.metrics.events[0].Degraded)
}

func TestSearch_BudgetSpentBeforeRerank(t *testing.T) {
	// Given: expansion consumes the whole budget on a fake clock
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	scorer := &countingScorer{logit: map[string]float64{}}
	vectors := &fakeVectors{hits: []retrieval.VectorHit{
		{ID: "a", Similarity: 0.9, Summary: sum("F-150", 1)},
		{ID: "b", Similarity: 0.8, Summary: sum("Ranger", 1)},
	}}
	expander := &spyExpander{hook: func() { clock.t = clock.t.Add(6 * time.Second) }}
	retriever := retrieval.NewRetriever(&fakeEmbedder{}, vectors, &fakeFullText{}, &fakeStructured{})
	cfg := DefaultConfig()
	cfg.TotalBudget = 5 * time.Second
	orch, err := NewOrchestrator(expander, retriever, rerank.New(scorer), cfg)
	require.NoError(t, err)
	orch.now = clock.now

	// When: searching
	resp, err := orch.Search(context.Background(), Request{Query: "truck"})

	// Then: the fused order comes back unscored and reranking is flagged
	require.NoError(t, err)
	assert.True(t, resp.Degraded.Reranking)
	assert.Zero(t, scorer.calls)
	assert.Equal(t, []string{"a", "b"}, resultIDs(resp.Results))
	for _, r := range resp.Results {
		assert.Equal(t, r.CombinedScore, r.RelevanceScore)
	}
	assert.Equal(t, 6*time.Second, resp.Latency.Expansion)
	assert.Equal(t, 6*time.Second, resp.Latency.Total)
}

func TestSearch_RerankBudgetIsRemainder(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	expander := &spyExpander{hook: func() { clock.t = clock.t.Add(1200 * time.Millisecond) }}
	reranker := &spyReranker{}
	orch, err := NewOrchestrator(expander, &spyRetriever{}, reranker, DefaultConfig())
	require.NoError(t, err)
	orch.now = clock.now

	_, err = orch.Search(context.Background(), Request{Query: "truck"})

	require.NoError(t, err)
	assert.Equal(t, DefaultTotalBudget-1200*time.Millisecond, reranker.budget)
}

// =============================================================================
// Response encoding
// =============================================================================

func TestResponse_JSON(t *testing.T) {
	resp := Response{
		RequestID: "r1",
		Query:     "truck",
		Results:   []rerank.Candidate{},
		State:     StateDone,
		Latency:   Latency{Expansion: 1500 * time.Microsecond, Total: 2 * time.Second},
		Degraded:  Degraded{Reranking: true},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "DONE", decoded["state"])
	assert.NotContains(t, decoded, "expanded_query")
	latency := decoded["latency"].(map[string]any)
	assert.Equal(t, 1.5, latency["expansion_ms"])
	assert.Equal(t, 2000.0, latency["total_ms"])
	assert.Equal(t, true, decoded["degraded"].(map[string]any)["reranking"])
}

func TestDegraded_Stages(t *testing.T) {
	assert.Nil(t, Degraded{}.Stages())
	assert.Equal(t, []telemetry.Stage{telemetry.StageVector, telemetry.StageRerank},
		Degraded{Reranking: true, Vector: true}.Stages())
}
