// Package retrieval runs the three candidate sub-searches (vector, keyword,
// structured filter) concurrently and tolerates partial failure.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/stage"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// Source identifies a sub-search.
type Source string

const (
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
	SourceFilter  Source = "filter"
)

// Candidate is one vehicle from one source list. Rank is its 1-based
// position in that list.
type Candidate struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Rank    int             `json:"rank"`
	Summary vehicle.Summary `json:"summary"`
}

// VectorHit is a similarity search result.
type VectorHit struct {
	ID         string
	Similarity float64
	Summary    vehicle.Summary
}

// KeywordHit is a full-text search result. Hits are returned best first;
// Score is the store's lexical relevance.
type KeywordHit struct {
	ID      string
	Score   float64
	Summary vehicle.Summary
}

// FilterHit is a structured search result.
type FilterHit struct {
	ID      string
	Summary vehicle.Summary
}

// EmbeddingProvider turns text into a fixed-dimension vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore finds vehicles nearest to an embedding.
type VectorStore interface {
	SimilaritySearch(ctx context.Context, embedding []float32, limit int) ([]VectorHit, error)
}

// FullTextStore matches text and synonym terms, OR-combined.
type FullTextStore interface {
	KeywordSearch(ctx context.Context, text string, synonyms []string, limit int) ([]KeywordHit, error)
}

// StructuredStore returns vehicles matching every set filter. Ordering is
// store-defined.
type StructuredStore interface {
	FilterSearch(ctx context.Context, filters Filters, limit int) ([]FilterHit, error)
}

// Request is the input to Retrieve.
type Request struct {
	// QueryText is embedded for the vector sub-search.
	QueryText string
	// ExpandedText and Synonyms drive the keyword sub-search.
	ExpandedText string
	Synonyms     []string
	Filters      Filters
	// Limit is the per-source breadth.
	Limit int
}

// Result carries each source's outcome. A degraded source has an empty
// list and the reason it failed.
type Result struct {
	Vector  stage.Outcome[[]Candidate]
	Keyword stage.Outcome[[]Candidate]
	Filter  stage.Outcome[[]Candidate]
}

// Total returns the number of candidates across all sources.
func (r *Result) Total() int {
	return len(r.Vector.Value) + len(r.Keyword.Value) + len(r.Filter.Value)
}

// ErrRetrieval matches any *RetrievalError via errors.Is.
var ErrRetrieval = errors.New("retrieval failed")

// ErrNotConfigured is the failure of a sub-search with no backing store.
var ErrNotConfigured = errors.New("sub-search not configured")

// RetrievalError reports that every sub-search failed.
type RetrievalError struct {
	Vector  error
	Keyword error
	Filter  error
}

func (e *RetrievalError) Error() string {
	var b strings.Builder
	b.WriteString("all retrieval sources failed")
	for _, part := range []struct {
		src Source
		err error
	}{{SourceVector, e.Vector}, {SourceKeyword, e.Keyword}, {SourceFilter, e.Filter}} {
		if part.err != nil {
			fmt.Fprintf(&b, "; %s: %v", part.src, part.err)
		}
	}
	return b.String()
}

// Unwrap exposes each source's cause to errors.Is and errors.As.
func (e *RetrievalError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Vector, e.Keyword, e.Filter} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Is reports whether target is ErrRetrieval.
func (e *RetrievalError) Is(target error) bool {
	return target == ErrRetrieval
}
