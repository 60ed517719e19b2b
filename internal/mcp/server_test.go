package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/expand"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/rerank"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/search"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/telemetry"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

type fakeSearcher struct {
	got  search.Request
	resp *search.Response
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, req search.Request) (*search.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeStats struct {
	snap *telemetry.Snapshot
}

func (f *fakeStats) Snapshot() *telemetry.Snapshot { return f.snap }

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	return res
}

func decodeText(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	require.NoError(t, json.Unmarshal([]byte(text.Text), v))
}

func sampleResponse() *search.Response {
	return &search.Response{
		RequestID:       "req-1",
		Query:           "cheap truck",
		ExpandedQuery:   &expand.ExpandedQuery{Original: "cheap truck", Expanded: "affordable pickup truck", Synonyms: []string{"pickup"}},
		TotalCandidates: 7,
		Results: []rerank.Candidate{{
			ID: "v1", NewRank: 1, OriginalRank: 2, RelevanceScore: 0.9, CombinedScore: 0.012, Scored: true,
			Summary: vehicle.Summary{Year: 2020, Make: "Ford", Model: "F-150", BodyType: "truck", Price: 28500},
		}},
		Degraded: search.Degraded{Keyword: true},
		Latency:  search.Latency{Total: 42 * time.Millisecond},
		State:    search.StateDone,
	}
}

func TestNewServer_RequiresSearcher(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	s, err := NewServer(&fakeSearcher{})
	require.NoError(t, err)
	cs := connect(t, s)

	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolSearchVehicles, ToolPipelineStats}, names)
}

// =============================================================================
// search_vehicles
// =============================================================================

func TestSearchVehicles_Success(t *testing.T) {
	// Given a searcher with one ranked result
	fake := &fakeSearcher{resp: sampleResponse()}
	s, err := NewServer(fake)
	require.NoError(t, err)
	cs := connect(t, s)

	// When the tool is called with filters
	res := callTool(t, cs, ToolSearchVehicles, map[string]any{
		"query":   "cheap truck",
		"filters": map[string]any{"max_price": 30000},
		"top_k":   5,
	})

	// Then the request reaches the pipeline unchanged
	assert.False(t, res.IsError)
	assert.Equal(t, "cheap truck", fake.got.Query)
	assert.Equal(t, 5, fake.got.TopK)
	assert.EqualValues(t, 30000, fake.got.Filters["max_price"])

	// And the output is flattened for the client
	var out SearchVehiclesOutput
	decodeText(t, res, &out)
	assert.Equal(t, "req-1", out.RequestID)
	assert.Equal(t, "affordable pickup truck", out.ExpandedQuery)
	assert.Equal(t, []string{"keyword"}, out.Degraded)
	assert.Equal(t, 42.0, out.LatencyMs.Total)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "2020 Ford F-150", out.Results[0].Title)
	assert.Equal(t, 1, out.Results[0].Rank)
	assert.True(t, out.Results[0].Scored)
}

func TestSearchVehicles_BlankQuery(t *testing.T) {
	fake := &fakeSearcher{resp: sampleResponse()}
	s, err := NewServer(fake)
	require.NoError(t, err)
	cs := connect(t, s)

	res := callTool(t, cs, ToolSearchVehicles, map[string]any{"query": "   "})

	assert.True(t, res.IsError)
	assert.Empty(t, fake.got.Query, "pipeline must not run")
}

func TestSearchVehicles_RetrievalFailure(t *testing.T) {
	// Given a pipeline where every source failed
	fake := &fakeSearcher{err: &retrieval.RetrievalError{
		Vector:  errors.New("embedder down"),
		Keyword: errors.New("index locked"),
		Filter:  errors.New("catalog missing"),
	}}
	s, err := NewServer(fake)
	require.NoError(t, err)
	cs := connect(t, s)

	// When the tool is called
	res := callTool(t, cs, ToolSearchVehicles, map[string]any{"query": "sedan"})

	// Then the client sees a tool error naming the failure
	assert.True(t, res.IsError)
	text := res.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, "All retrieval sources failed")
}

func TestToSearchVehiclesOutput_Empty(t *testing.T) {
	out := ToSearchVehiclesOutput(&search.Response{Query: "x"})

	assert.NotNil(t, out.Results)
	assert.NotNil(t, out.Degraded)
	assert.Empty(t, out.ExpandedQuery)
}

// =============================================================================
// pipeline_stats
// =============================================================================

func TestPipelineStats(t *testing.T) {
	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	stats := &fakeStats{snap: &telemetry.Snapshot{
		TotalQueries:        10,
		ZeroResultCount:     2,
		ZeroResultQueries:   []string{"hovercraft"},
		DegradedCounts:      map[telemetry.Stage]int64{telemetry.StageRerank: 5},
		LatencyDistribution: map[telemetry.LatencyBucket]int64{telemetry.LatencyToBucket(30 * time.Millisecond): 10},
		TopTerms:            []telemetry.TermCount{{Term: "truck", Count: 4}},
		Since:               since,
	}}
	s, err := NewServer(&fakeSearcher{}, WithStats(stats))
	require.NoError(t, err)
	cs := connect(t, s)

	res := callTool(t, cs, ToolPipelineStats, map[string]any{})
	require.False(t, res.IsError)

	var out PipelineStatsOutput
	decodeText(t, res, &out)
	assert.Equal(t, int64(10), out.TotalQueries)
	assert.Equal(t, 20.0, out.ZeroResultPercent)
	assert.Equal(t, []string{"hovercraft"}, out.ZeroResultQueries)
	assert.Equal(t, 0.5, out.DegradedRates["reranking"])
	assert.Equal(t, []TermOutput{{Term: "truck", Count: 4}}, out.TopTerms)
	assert.Equal(t, "2026-10-01T00:00:00Z", out.Since)
}

func TestPipelineStats_Disabled(t *testing.T) {
	s, err := NewServer(&fakeSearcher{})
	require.NoError(t, err)
	cs := connect(t, s)

	res := callTool(t, cs, ToolPipelineStats, map[string]any{})
	assert.True(t, res.IsError)
}

func TestServe_UnknownTransport(t *testing.T) {
	s, err := NewServer(&fakeSearcher{})
	require.NoError(t, err)

	err = s.Serve(context.Background(), "sse")
	assert.ErrorContains(t, err, "unknown transport")
}
