// Package rerank re-scores fused candidates with a cross-encoder under a
// deadline, keeping fused scores for anything left unscored.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/fusion"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/stage"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// DefaultBatchSize is the number of documents per scoring call.
const DefaultBatchSize = 10

var (
	// ErrNoScorer marks a fallback caused by running without a cross-encoder.
	ErrNoScorer = errors.New("no cross-encoder scorer configured")

	// ErrBudgetExhausted marks a fallback taken because no time remained.
	ErrBudgetExhausted = errors.New("rerank budget exhausted before dispatch")
)

// BatchError reports batches that failed or missed the deadline.
type BatchError struct {
	Failed int
	Total  int
	Cause  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d rerank batches failed: %v", e.Failed, e.Total, e.Cause)
}

func (e *BatchError) Unwrap() error { return e.Cause }

// CrossEncoderScorer scores (query, document) pairs. It returns one raw
// logit per document, aligned by index.
type CrossEncoderScorer interface {
	ScoreBatch(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Candidate is a re-ranked result. RelevanceScore is the sigmoid of the
// cross-encoder logit when Scored, else the fused CombinedScore.
type Candidate struct {
	ID             string          `json:"id"`
	RelevanceScore float64         `json:"relevance_score"`
	CombinedScore  float64         `json:"combined_score"`
	OriginalRank   int             `json:"original_rank"`
	NewRank        int             `json:"new_rank"`
	Scored         bool            `json:"scored"`
	Summary        vehicle.Summary `json:"summary"`
}

// Sigmoid maps a raw logit into (0,1); Sigmoid(0) == 0.5.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(r *Reranker) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithCircuitBreaker skips dispatch entirely while the scorer keeps failing.
func WithCircuitBreaker(cb *oerrors.CircuitBreaker) Option {
	return func(r *Reranker) { r.breaker = cb }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reranker) { r.logger = l }
}

// Reranker is the re-ranking stage.
type Reranker struct {
	scorer    CrossEncoderScorer
	batchSize int
	breaker   *oerrors.CircuitBreaker
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Reranker. A nil scorer makes every call take the fallback path.
func New(scorer CrossEncoderScorer, opts ...Option) *Reranker {
	r := &Reranker{
		scorer:    scorer,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type batch struct {
	start, end int
}

type batchResult struct {
	scores []float64
	err    error
}

// Rerank scores candidates against query within budget and returns at
// most topK results (topK <= 0 keeps all). It never fails: unscored
// candidates keep their fused score, and the outcome is degraded whenever
// any batch failed or scoring was skipped.
func (r *Reranker) Rerank(ctx context.Context, query string, cands []fusion.Candidate, topK int, budget time.Duration) stage.Outcome[[]Candidate] {
	start := r.now()
	if len(cands) == 0 {
		return stage.Ok([]Candidate{})
	}
	if topK <= 0 || topK > len(cands) {
		topK = len(cands)
	}

	if r.scorer == nil {
		return stage.Degraded(fallback(cands, topK), ErrNoScorer)
	}
	if r.breaker != nil && !r.breaker.Allow() {
		return stage.Degraded(fallback(cands, topK), oerrors.ErrCircuitOpen)
	}

	docs := make([]string, len(cands))
	for i, c := range cands {
		docs[i] = vehicle.BuildVehicleText(c.Summary, true)
	}
	batches := partition(len(cands), r.batchSize)

	remaining := budget - r.now().Sub(start)
	if remaining <= 0 {
		r.logger.Debug("rerank_skipped", slog.Duration("budget", budget))
		return stage.Degraded(fallback(cands, topK), ErrBudgetExhausted)
	}

	slots, completed := r.dispatch(ctx, query, docs, batches, remaining)

	out := make([]Candidate, len(cands))
	for i, c := range cands {
		out[i] = Candidate{
			ID:             c.ID,
			RelevanceScore: c.CombinedScore,
			CombinedScore:  c.CombinedScore,
			OriginalRank:   i + 1,
			Summary:        c.Summary,
		}
	}

	var (
		failed   int
		firstErr error
	)
	for bi, b := range batches {
		// Never touch the slot of a batch that missed the deadline.
		err := context.DeadlineExceeded
		if completed[bi] {
			err = slots[bi].err
		}
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			r.recordBreaker(err)
			r.logger.Debug("rerank_batch_failed",
				slog.Int("batch", bi),
				slog.Int("size", b.end-b.start),
				slog.String("error", err.Error()))
			continue
		}
		r.recordBreaker(nil)
		for j, logit := range slots[bi].scores {
			out[b.start+j].RelevanceScore = Sigmoid(logit)
			out[b.start+j].Scored = true
		}
	}

	// out is in fused order, so the stable sort breaks ties by original rank.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	out = out[:topK]
	for i := range out {
		out[i].NewRank = i + 1
	}

	r.logger.Debug("rerank_completed",
		slog.Int("candidates", len(cands)),
		slog.Int("batches", len(batches)),
		slog.Int("failed_batches", failed),
		slog.Duration("duration", r.now().Sub(start)))

	if failed > 0 {
		return stage.Degraded(out, &BatchError{Failed: failed, Total: len(batches), Cause: firstErr})
	}
	return stage.Ok(out)
}

// dispatch scores every batch concurrently and joins them until the
// deadline. A batch's slot is only meaningful when completed[i] is true;
// batches still running at the deadline are abandoned and their slots
// never read.
func (r *Reranker) dispatch(ctx context.Context, query string, docs []string, batches []batch, remaining time.Duration) ([]batchResult, []bool) {
	ctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	slots := make([]batchResult, len(batches))
	done := make(chan int, len(batches))

	for i, b := range batches {
		go func() {
			scores, err := r.scorer.ScoreBatch(ctx, query, docs[b.start:b.end])
			if err == nil {
				err = validateScores(scores, b.end-b.start)
			}
			slots[i] = batchResult{scores: scores, err: err}
			done <- i
		}()
	}

	completed := make([]bool, len(batches))
	for n := 0; n < len(batches); n++ {
		select {
		case i := <-done:
			completed[i] = true
		case <-ctx.Done():
			return slots, completed
		}
	}
	return slots, completed
}

func (r *Reranker) recordBreaker(err error) {
	if r.breaker == nil {
		return
	}
	if err != nil {
		r.breaker.RecordFailure()
		return
	}
	r.breaker.RecordSuccess()
}

func validateScores(scores []float64, want int) error {
	if len(scores) != want {
		return oerrors.New(oerrors.ErrCodeCollaboratorResponse,
			fmt.Sprintf("scorer returned %d scores for %d documents", len(scores), want), nil)
	}
	for _, s := range scores {
		if math.IsNaN(s) {
			return oerrors.New(oerrors.ErrCodeCollaboratorResponse, "scorer returned NaN", nil)
		}
	}
	return nil
}

func partition(n, size int) []batch {
	batches := make([]batch, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		batches = append(batches, batch{start: start, end: min(start+size, n)})
	}
	return batches
}

// fallback keeps fused order and scores, truncated to topK.
func fallback(cands []fusion.Candidate, topK int) []Candidate {
	out := make([]Candidate, topK)
	for i, c := range cands[:topK] {
		out[i] = Candidate{
			ID:             c.ID,
			RelevanceScore: c.CombinedScore,
			CombinedScore:  c.CombinedScore,
			OriginalRank:   i + 1,
			NewRank:        i + 1,
			Summary:        c.Summary,
		}
	}
	return out
}
