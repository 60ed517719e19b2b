// Package search sequences the retrieval pipeline for one request:
// expansion, concurrent retrieval, rank fusion and re-ranking. Only a
// total retrieval failure is returned as an error; every other problem
// is reported through Response.Degraded.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/config"
	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/fusion"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/rerank"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/telemetry"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// ErrNilDependency is returned when a required stage is nil.
var ErrNilDependency = errors.New("nil dependency")

// Config holds the orchestrator's tuning knobs.
type Config struct {
	TopK int
	// RetrievalLimit is the per-source breadth; 0 means 2 x TopK.
	RetrievalLimit        int
	InitialRetrievalLimit int
	TotalBudget           time.Duration
	Weights               fusion.Weights
	RRFConstant           int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		TopK:                  DefaultTopK,
		InitialRetrievalLimit: fusion.DefaultInitialRetrievalLimit,
		TotalBudget:           DefaultTotalBudget,
		Weights:               fusion.DefaultWeights(),
		RRFConstant:           fusion.DefaultRRFConstant,
	}
}

// ConfigFrom derives orchestrator settings from the loaded configuration.
func ConfigFrom(cfg *config.Config) (Config, error) {
	d, err := cfg.Durations()
	if err != nil {
		return Config{}, err
	}
	return Config{
		TopK:                  cfg.Search.TopK,
		RetrievalLimit:        cfg.Search.RetrievalLimit,
		InitialRetrievalLimit: cfg.Search.InitialRetrievalLimit,
		TotalBudget:           d.TotalBudget,
		Weights: fusion.Weights{
			Vector:  cfg.Fusion.VectorWeight,
			Keyword: cfg.Fusion.KeywordWeight,
			Filter:  cfg.Fusion.FilterWeight,
		},
		RRFConstant: cfg.Fusion.RRFConstant,
	}, nil
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics reports every request to m.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator runs searches. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	expander  Expander
	retriever Retriever
	reranker  Reranker
	config    Config
	metrics   MetricsRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator wires the stages together.
func NewOrchestrator(expander Expander, retriever Retriever, reranker Reranker, cfg Config, opts ...Option) (*Orchestrator, error) {
	if expander == nil {
		return nil, fmt.Errorf("%w: expander is required", ErrNilDependency)
	}
	if retriever == nil {
		return nil, fmt.Errorf("%w: retriever is required", ErrNilDependency)
	}
	if reranker == nil {
		return nil, fmt.Errorf("%w: reranker is required", ErrNilDependency)
	}

	defaults := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.InitialRetrievalLimit <= 0 {
		cfg.InitialRetrievalLimit = defaults.InitialRetrievalLimit
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = defaults.RRFConstant
	}
	if cfg.Weights == (fusion.Weights{}) {
		cfg.Weights = defaults.Weights
	}

	o := &Orchestrator{
		expander:  expander,
		retriever: retriever,
		reranker:  reranker,
		config:    cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Search runs one request through the pipeline. An empty query is a
// validation error and runs no stage. Otherwise the only error is a
// *retrieval.RetrievalError, returned when every sub-search failed.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Response, error) {
	start := o.now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, oerrors.New(oerrors.ErrCodeQueryEmpty, "query must not be empty", nil).
			WithSuggestion("Describe the vehicle you are looking for")
	}
	topK := o.topK(req.TopK)

	resp := &Response{
		RequestID: uuid.NewString(),
		Query:     query,
		State:     StateInit,
		Results:   []rerank.Candidate{},
	}
	logger := o.logger.With(slog.String("request_id", resp.RequestID))
	logger.Debug("search_started", slog.String("query", query), slog.Int("top_k", topK))

	// Expansion never blocks.
	resp.advance(StateExpanding)
	expanded := o.expander.Expand(ctx, query)
	if expanded.IsDegraded() {
		resp.Degraded.Expansion = true
		logger.Warn("expansion_degraded", oerrors.LogAttrs(expanded.Reason)...)
	} else {
		eq := expanded.Value
		resp.ExpandedQuery = &eq
	}
	mark := o.now()
	resp.Latency.Expansion = mark.Sub(start)

	// Retrieval fans out to all three sources.
	resp.advance(StateRetrieving)
	filters := retrieval.ParseFilters(retrieval.MergeFilterMaps(expanded.Value.ExtractedFilters, req.Filters))
	result, err := o.retriever.Retrieve(ctx, retrieval.Request{
		QueryText:    vehicle.BuildQueryText(expanded.Value.Expanded),
		ExpandedText: expanded.Value.Expanded,
		Synonyms:     expanded.Value.Synonyms,
		Filters:      filters,
		Limit:        o.retrievalLimit(topK),
	})
	resp.Latency.Retrieval = o.now().Sub(mark)
	mark = o.now()
	if err != nil {
		resp.advance(StateFailed)
		resp.Degraded.Vector, resp.Degraded.Keyword, resp.Degraded.Filter = true, true, true
		resp.Latency.Total = o.now().Sub(start)
		logger.Error("search_failed",
			append(oerrors.LogAttrs(err), slog.Duration("duration", resp.Latency.Total))...)
		o.record(resp, true)
		return nil, asRetrievalError(err)
	}
	resp.Degraded.Vector = result.Vector.IsDegraded()
	resp.Degraded.Keyword = result.Keyword.IsDegraded()
	resp.Degraded.Filter = result.Filter.IsDegraded()

	// Fusion is pure and synchronous.
	resp.advance(StateFusing)
	fused, total := fusion.FuseTop(result.Vector.Value, result.Keyword.Value, result.Filter.Value,
		o.config.Weights, o.config.RRFConstant, o.config.InitialRetrievalLimit)
	resp.TotalCandidates = total
	resp.Latency.Fusion = o.now().Sub(mark)
	mark = o.now()

	// Re-ranking gets whatever is left of the total budget.
	resp.advance(StateReranking)
	budget := o.config.TotalBudget - mark.Sub(start)
	reranked := o.reranker.Rerank(ctx, query, fused, topK, budget)
	if reranked.IsDegraded() {
		resp.Degraded.Reranking = true
		logger.Warn("rerank_degraded",
			append(oerrors.LogAttrs(reranked.Reason), slog.Duration("budget", budget))...)
	}
	resp.Results = reranked.Value
	resp.Latency.Reranking = o.now().Sub(mark)

	resp.advance(StateDone)
	resp.Latency.Total = o.now().Sub(start)

	logger.Info("search_completed",
		slog.Int("results", len(resp.Results)),
		slog.Int("candidates", resp.TotalCandidates),
		slog.Bool("degraded", resp.Degraded.Any()),
		slog.Duration("duration", resp.Latency.Total))
	o.record(resp, false)

	return resp, nil
}

// advance moves the response to the next state. Search only ever asks
// for legal transitions.
func (r *Response) advance(to State) {
	if !r.State.CanTransition(to) {
		panic(fmt.Sprintf("search: illegal transition %s -> %s", r.State, to))
	}
	r.State = to
}

func (o *Orchestrator) topK(requested int) int {
	if requested <= 0 {
		requested = o.config.TopK
	}
	return min(max(requested, 1), MaxTopK)
}

func (o *Orchestrator) retrievalLimit(topK int) int {
	if o.config.RetrievalLimit > 0 {
		return o.config.RetrievalLimit
	}
	return 2 * topK
}

func (o *Orchestrator) record(resp *Response, failed bool) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordSearch(telemetry.SearchEvent{
		RequestID:       resp.RequestID,
		Query:           resp.Query,
		ResultCount:     len(resp.Results),
		TotalCandidates: resp.TotalCandidates,
		Latency:         resp.Latency.Total,
		Degraded:        resp.Degraded.Stages(),
		Failed:          failed,
		Timestamp:       o.now(),
	})
}

// asRetrievalError keeps the error contract even if a Retriever
// implementation returns something else.
func asRetrievalError(err error) error {
	var re *retrieval.RetrievalError
	if errors.As(err, &re) {
		return err
	}
	return &retrieval.RetrievalError{Vector: err, Keyword: err, Filter: err}
}
