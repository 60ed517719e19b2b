package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/stage"
)

// Option configures a Retriever.
type Option func(*Retriever)

// WithSubSearchTimeout bounds each sub-search individually. Zero means
// sub-searches only stop when the caller's context does.
func WithSubSearchTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.subSearchTimeout = d
		}
	}
}

// WithCircuitBreaker guards one source so a dead backend fails fast.
func WithCircuitBreaker(src Source, cb *oerrors.CircuitBreaker) Option {
	return func(r *Retriever) {
		if r.breakers == nil {
			r.breakers = make(map[Source]*oerrors.CircuitBreaker)
		}
		r.breakers[src] = cb
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// Retriever is the candidate retrieval stage. Any collaborator may be nil;
// its sub-search then fails with ErrNotConfigured.
type Retriever struct {
	embedder   EmbeddingProvider
	vectors    VectorStore
	fullText   FullTextStore
	structured StructuredStore

	subSearchTimeout time.Duration
	breakers         map[Source]*oerrors.CircuitBreaker
	logger           *slog.Logger
}

// NewRetriever creates a Retriever over the given collaborators.
func NewRetriever(embedder EmbeddingProvider, vectors VectorStore, fullText FullTextStore, structured StructuredStore, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:   embedder,
		vectors:    vectors,
		fullText:   fullText,
		structured: structured,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs the three sub-searches concurrently and waits for all of
// them. A failed source contributes an empty, degraded list. Only when
// every source fails does Retrieve return a *RetrievalError.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	var (
		g                        errgroup.Group
		vecList, kwList, fltList []Candidate
		vecErr, kwErr, fltErr    error
	)

	// Each goroutine records its own error and returns nil so one source
	// failing never cancels its siblings.
	g.Go(func() error {
		vecList, vecErr = r.run(ctx, SourceVector, func(ctx context.Context) ([]Candidate, error) {
			return r.vectorSearch(ctx, req)
		})
		return nil
	})
	g.Go(func() error {
		kwList, kwErr = r.run(ctx, SourceKeyword, func(ctx context.Context) ([]Candidate, error) {
			return r.keywordSearch(ctx, req)
		})
		return nil
	})
	g.Go(func() error {
		fltList, fltErr = r.run(ctx, SourceFilter, func(ctx context.Context) ([]Candidate, error) {
			return r.filterSearch(ctx, req)
		})
		return nil
	})
	_ = g.Wait()

	if vecErr != nil && kwErr != nil && fltErr != nil {
		return nil, &RetrievalError{Vector: vecErr, Keyword: kwErr, Filter: fltErr}
	}

	return &Result{
		Vector:  outcome(vecList, vecErr),
		Keyword: outcome(kwList, kwErr),
		Filter:  outcome(fltList, fltErr),
	}, nil
}

func outcome(list []Candidate, err error) stage.Outcome[[]Candidate] {
	if err != nil {
		return stage.Degraded([]Candidate{}, err)
	}
	if list == nil {
		list = []Candidate{}
	}
	return stage.Ok(list)
}

// run applies the per-source timeout and circuit breaker around fn.
func (r *Retriever) run(ctx context.Context, src Source, fn func(context.Context) ([]Candidate, error)) ([]Candidate, error) {
	if r.subSearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.subSearchTimeout)
		defer cancel()
	}

	start := time.Now()
	call := func() ([]Candidate, error) { return fn(ctx) }

	var (
		list []Candidate
		err  error
	)
	if cb := r.breakers[src]; cb != nil {
		list, err = oerrors.CircuitExecute(cb, call)
	} else {
		list, err = call()
	}

	if err != nil {
		r.logger.Warn("sub_search_failed",
			append([]any{slog.String("source", string(src)), slog.Duration("duration", time.Since(start))},
				oerrors.LogAttrs(err)...)...)
		return nil, err
	}

	r.logger.Debug("sub_search_completed",
		slog.String("source", string(src)),
		slog.Int("candidates", len(list)),
		slog.Duration("duration", time.Since(start)))
	return list, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, req Request) ([]Candidate, error) {
	if r.embedder == nil || r.vectors == nil {
		return nil, ErrNotConfigured
	}

	embedding, err := r.embedder.Embed(ctx, req.QueryText)
	if err != nil {
		return nil, oerrors.New(oerrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	hits, err := r.vectors.SimilaritySearch(ctx, embedding, req.Limit)
	if err != nil {
		return nil, oerrors.StorageError("vector search failed", err)
	}

	// Rank by descending similarity regardless of store ordering.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })

	list := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		if req.Limit > 0 && len(list) == req.Limit {
			break
		}
		list = append(list, Candidate{ID: h.ID, Score: h.Similarity, Rank: len(list) + 1, Summary: h.Summary})
	}
	return list, nil
}

func (r *Retriever) keywordSearch(ctx context.Context, req Request) ([]Candidate, error) {
	if r.fullText == nil {
		return nil, ErrNotConfigured
	}

	hits, err := r.fullText.KeywordSearch(ctx, req.ExpandedText, req.Synonyms, req.Limit)
	if err != nil {
		return nil, oerrors.StorageError("keyword search failed", err)
	}

	list := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		if req.Limit > 0 && len(list) == req.Limit {
			break
		}
		list = append(list, Candidate{ID: h.ID, Score: h.Score, Rank: len(list) + 1, Summary: h.Summary})
	}
	return list, nil
}

func (r *Retriever) filterSearch(ctx context.Context, req Request) ([]Candidate, error) {
	if r.structured == nil {
		return nil, ErrNotConfigured
	}

	// No filters matches every vehicle; the store returns the newest listings.
	hits, err := r.structured.FilterSearch(ctx, req.Filters, req.Limit)
	if err != nil {
		return nil, oerrors.StorageError("filter search failed", err)
	}

	// Filters are boolean matches: every hit scores 1.0.
	list := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		if req.Limit > 0 && len(list) == req.Limit {
			break
		}
		list = append(list, Candidate{ID: h.ID, Score: 1.0, Rank: len(list) + 1, Summary: h.Summary})
	}
	return list, nil
}
