package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/expand"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/fusion"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/rerank"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/stage"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/telemetry"
)

const (
	// DefaultTopK is used when a request leaves TopK unset.
	DefaultTopK = 10

	// MaxTopK caps the requested result count.
	MaxTopK = 100

	// DefaultTotalBudget is the end-to-end budget the rerank deadline is carved from.
	DefaultTotalBudget = 5 * time.Second
)

// Request is a search call.
type Request struct {
	Query string `json:"query"`
	// Filters override expansion-extracted filters key by key.
	Filters map[string]any `json:"filters,omitempty"`
	TopK    int            `json:"top_k,omitempty"`
}

// Response is the result of a search call.
type Response struct {
	RequestID       string                `json:"request_id"`
	Query           string                `json:"query"`
	ExpandedQuery   *expand.ExpandedQuery `json:"expanded_query,omitempty"`
	TotalCandidates int                   `json:"total_candidates"`
	Results         []rerank.Candidate    `json:"results"`
	Degraded        Degraded              `json:"degraded"`
	Latency         Latency               `json:"latency"`
	State           State                 `json:"state"`
}

// Degraded flags the stages that fell back during a request.
type Degraded struct {
	Expansion bool `json:"expansion"`
	Vector    bool `json:"vector"`
	Keyword   bool `json:"keyword"`
	Filter    bool `json:"filter"`
	Reranking bool `json:"reranking"`
}

// Any reports whether any stage degraded.
func (d Degraded) Any() bool {
	return d.Expansion || d.Vector || d.Keyword || d.Filter || d.Reranking
}

// Stages lists the degraded stages in pipeline order.
func (d Degraded) Stages() []telemetry.Stage {
	var out []telemetry.Stage
	for _, s := range []struct {
		on    bool
		stage telemetry.Stage
	}{
		{d.Expansion, telemetry.StageExpansion},
		{d.Vector, telemetry.StageVector},
		{d.Keyword, telemetry.StageKeyword},
		{d.Filter, telemetry.StageFilter},
		{d.Reranking, telemetry.StageRerank},
	} {
		if s.on {
			out = append(out, s.stage)
		}
	}
	return out
}

// Latency is the per-stage wall-clock breakdown.
type Latency struct {
	Expansion time.Duration
	Retrieval time.Duration
	Fusion    time.Duration
	Reranking time.Duration
	Total     time.Duration
}

// MarshalJSON renders durations as fractional milliseconds.
func (l Latency) MarshalJSON() ([]byte, error) {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return json.Marshal(struct {
		Expansion float64 `json:"expansion_ms"`
		Retrieval float64 `json:"retrieval_ms"`
		Fusion    float64 `json:"fusion_ms"`
		Reranking float64 `json:"reranking_ms"`
		Total     float64 `json:"total_ms"`
	}{ms(l.Expansion), ms(l.Retrieval), ms(l.Fusion), ms(l.Reranking), ms(l.Total)})
}

// =============================================================================
// Stage contracts
// =============================================================================

// Expander is the query expansion stage.
type Expander interface {
	Expand(ctx context.Context, query string) stage.Outcome[expand.ExpandedQuery]
}

// Retriever is the candidate retrieval stage.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// Reranker is the re-ranking stage.
type Reranker interface {
	Rerank(ctx context.Context, query string, cands []fusion.Candidate, topK int, budget time.Duration) stage.Outcome[[]rerank.Candidate]
}

// MetricsRecorder receives one event per search.
type MetricsRecorder interface {
	RecordSearch(event telemetry.SearchEvent)
}

var (
	_ Expander        = (*expand.Expander)(nil)
	_ Retriever       = (*retrieval.Retriever)(nil)
	_ Reranker        = (*rerank.Reranker)(nil)
	_ MetricsRecorder = (*telemetry.PipelineMetrics)(nil)
)
