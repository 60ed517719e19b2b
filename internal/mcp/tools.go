package mcp

import (
	"time"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/search"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/telemetry"
)

// SearchVehiclesInput is the search_vehicles tool input.
type SearchVehiclesInput struct {
	Query   string         `json:"query" jsonschema:"natural-language description of the vehicle wanted"`
	Filters map[string]any `json:"filters,omitempty" jsonschema:"structured filters: make, type, condition, min_price, max_price, min_year, max_year, max_mileage"`
	TopK    int            `json:"top_k,omitempty" jsonschema:"maximum number of results, default 10, at most 100"`
}

// SearchVehiclesOutput is the search_vehicles tool output.
type SearchVehiclesOutput struct {
	RequestID       string          `json:"request_id"`
	Query           string          `json:"query"`
	ExpandedQuery   string          `json:"expanded_query,omitempty" jsonschema:"the query after LLM expansion"`
	Synonyms        []string        `json:"synonyms,omitempty"`
	TotalCandidates int             `json:"total_candidates" jsonschema:"distinct vehicles found before re-ranking"`
	Results         []VehicleResult `json:"results"`
	Degraded        []string        `json:"degraded" jsonschema:"pipeline stages that fell back during this request"`
	LatencyMs       LatencyOutput   `json:"latency_ms"`
}

// VehicleResult is one ranked vehicle.
type VehicleResult struct {
	ID             string  `json:"id"`
	Rank           int     `json:"rank"`
	Title          string  `json:"title"`
	Price          float64 `json:"price"`
	Mileage        int     `json:"mileage,omitempty"`
	BodyType       string  `json:"type,omitempty"`
	Condition      string  `json:"condition,omitempty"`
	Snippet        string  `json:"snippet,omitempty"`
	RelevanceScore float64 `json:"relevance_score" jsonschema:"cross-encoder relevance between 0 and 1, or 0 when not scored"`
	CombinedScore  float64 `json:"combined_score" jsonschema:"weighted reciprocal rank fusion score"`
	Scored         bool    `json:"scored" jsonschema:"true if the cross-encoder scored this vehicle"`
}

// LatencyOutput is the per-stage latency in milliseconds.
type LatencyOutput struct {
	Expansion float64 `json:"expansion"`
	Retrieval float64 `json:"retrieval"`
	Fusion    float64 `json:"fusion"`
	Reranking float64 `json:"reranking"`
	Total     float64 `json:"total"`
}

// PipelineStatsInput takes no parameters.
type PipelineStatsInput struct{}

// PipelineStatsOutput is the pipeline_stats tool output.
type PipelineStatsOutput struct {
	TotalQueries       int64              `json:"total_queries"`
	FailedQueries      int64              `json:"failed_queries"`
	ZeroResultPercent  float64            `json:"zero_result_percent"`
	ZeroResultQueries  []string           `json:"zero_result_queries"`
	DegradedRates      map[string]float64 `json:"degraded_rates" jsonschema:"fraction of queries in which each stage fell back"`
	LatencyHistogram   map[string]int64   `json:"latency_histogram"`
	TopTerms           []TermOutput       `json:"top_terms"`
	ExactRepeatQueries int64              `json:"exact_repeat_queries"`
	Since              string             `json:"since"`
}

// TermOutput is one frequent query term.
type TermOutput struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// ToSearchVehiclesOutput flattens a pipeline response.
func ToSearchVehiclesOutput(resp *search.Response) SearchVehiclesOutput {
	out := SearchVehiclesOutput{
		RequestID:       resp.RequestID,
		Query:           resp.Query,
		TotalCandidates: resp.TotalCandidates,
		Results:         make([]VehicleResult, 0, len(resp.Results)),
		Degraded:        []string{},
		LatencyMs: LatencyOutput{
			Expansion: ms(resp.Latency.Expansion),
			Retrieval: ms(resp.Latency.Retrieval),
			Fusion:    ms(resp.Latency.Fusion),
			Reranking: ms(resp.Latency.Reranking),
			Total:     ms(resp.Latency.Total),
		},
	}
	if eq := resp.ExpandedQuery; eq != nil {
		out.ExpandedQuery = eq.Expanded
		out.Synonyms = eq.Synonyms
	}
	for _, s := range resp.Degraded.Stages() {
		out.Degraded = append(out.Degraded, string(s))
	}
	for _, c := range resp.Results {
		out.Results = append(out.Results, VehicleResult{
			ID:             c.ID,
			Rank:           c.NewRank,
			Title:          c.Summary.Title(),
			Price:          c.Summary.Price,
			Mileage:        c.Summary.Mileage,
			BodyType:       c.Summary.BodyType,
			Condition:      c.Summary.Condition,
			Snippet:        c.Summary.Snippet,
			RelevanceScore: c.RelevanceScore,
			CombinedScore:  c.CombinedScore,
			Scored:         c.Scored,
		})
	}
	return out
}

// ToPipelineStatsOutput converts a metrics snapshot.
func ToPipelineStatsOutput(s *telemetry.Snapshot) PipelineStatsOutput {
	out := PipelineStatsOutput{
		TotalQueries:       s.TotalQueries,
		FailedQueries:      s.FailedQueries,
		ZeroResultPercent:  s.ZeroResultPercentage(),
		ZeroResultQueries:  append([]string{}, s.ZeroResultQueries...),
		DegradedRates:      make(map[string]float64, len(s.DegradedCounts)),
		LatencyHistogram:   make(map[string]int64, len(s.LatencyDistribution)),
		TopTerms:           make([]TermOutput, 0, len(s.TopTerms)),
		ExactRepeatQueries: s.ExactRepeatCount,
		Since:              s.Since.UTC().Format(time.RFC3339),
	}
	for stage := range s.DegradedCounts {
		out.DegradedRates[string(stage)] = s.DegradedRate(stage)
	}
	for bucket, n := range s.LatencyDistribution {
		out.LatencyHistogram[string(bucket)] = n
	}
	for _, t := range s.TopTerms {
		out.TopTerms = append(out.TopTerms, TermOutput{Term: t.Term, Count: t.Count})
	}
	return out
}
