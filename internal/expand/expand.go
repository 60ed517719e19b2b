// Package expand turns a short user query into richer search text,
// synonyms and structured filters using an LLM, with a read-through cache.
// Expansion never fails: any problem yields the original query unchanged.
package expand

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/stage"
)

const (
	// DefaultTimeout bounds the LLM call. It only runs on a cache miss.
	DefaultTimeout = 10 * time.Second

	// DefaultCacheTTL is how long an expansion stays valid.
	DefaultCacheTTL = time.Hour
)

// ErrNoLLM marks a fallback caused by running without an expansion model.
var ErrNoLLM = errors.New("no expansion model configured")

// ExpandedQuery is the structured interpretation of a query.
type ExpandedQuery struct {
	Original         string         `json:"original"`
	Expanded         string         `json:"expanded"`
	Synonyms         []string       `json:"synonyms"`
	ExtractedFilters map[string]any `json:"extracted_filters"`
	Confidence       float64        `json:"confidence"`
}

// Fallback returns the pass-through expansion used whenever the LLM path fails.
func Fallback(query string) ExpandedQuery {
	return ExpandedQuery{
		Original:         query,
		Expanded:         query,
		Synonyms:         []string{},
		ExtractedFilters: map[string]any{},
		Confidence:       0,
	}
}

// LLM is the structured-extraction collaborator.
type LLM interface {
	Extract(ctx context.Context, prompt string) (string, error)
}

// Cache stores expansions by normalized query. Implementations must be
// safe for concurrent use and expire entries themselves.
type Cache interface {
	Get(key string) (ExpandedQuery, bool)
	Set(key string, value ExpandedQuery)
}

// Option configures an Expander.
type Option func(*Expander)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Expander) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCache sets the expansion cache. Without one every call hits the LLM.
func WithCache(c Cache) Option {
	return func(e *Expander) { e.cache = c }
}

// WithCircuitBreaker guards the LLM so an outage fails fast.
func WithCircuitBreaker(cb *oerrors.CircuitBreaker) Option {
	return func(e *Expander) { e.breaker = cb }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Expander) { e.logger = l }
}

// Expander is the query expansion stage.
type Expander struct {
	llm     LLM
	cache   Cache
	breaker *oerrors.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Expander. llm may be nil, in which case every call
// degrades to the pass-through expansion.
func New(llm LLM, opts ...Option) *Expander {
	e := &Expander{
		llm:     llm,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NormalizeQuery trims, lowercases and collapses whitespace. The result
// is the cache key.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Expand returns the expansion of query. Original is always query as
// given; a miss costs one bounded LLM call. Failures degrade to Fallback(query)
// and are never cached.
func (e *Expander) Expand(ctx context.Context, query string) stage.Outcome[ExpandedQuery] {
	key := NormalizeQuery(query)

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			e.logger.Debug("expansion_cache_hit", slog.String("key", key))
			cached.Original = query
			return stage.Ok(cached)
		}
	}

	if e.llm == nil {
		return stage.Degraded(Fallback(query), ErrNoLLM)
	}

	raw, err := e.extract(ctx, BuildPrompt(key))
	if err != nil {
		e.logger.Warn("expansion_failed", oerrors.LogAttrs(err)...)
		return stage.Degraded(Fallback(query), err)
	}

	expanded, err := ParsePayload(key, raw)
	if err != nil {
		e.logger.Warn("expansion_parse_failed", oerrors.LogAttrs(err)...)
		return stage.Degraded(Fallback(query), err)
	}

	if e.cache != nil {
		e.cache.Set(key, expanded)
	}
	e.logger.Debug("expansion_completed",
		slog.String("key", key),
		slog.Int("synonyms", len(expanded.Synonyms)),
		slog.Int("filters", len(expanded.ExtractedFilters)),
		slog.Float64("confidence", expanded.Confidence))

	// Cached values hold the normalized key; callers get their own text.
	expanded.Original = query
	return stage.Ok(expanded)
}

func (e *Expander) extract(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	call := func() (string, error) {
		return e.llm.Extract(ctx, prompt)
	}

	var (
		raw string
		err error
	)
	if e.breaker != nil {
		raw, err = oerrors.CircuitExecute(e.breaker, call)
	} else {
		raw, err = call()
	}
	if err != nil {
		return "", oerrors.CollaboratorError("query expansion call failed", err)
	}
	return raw, nil
}
