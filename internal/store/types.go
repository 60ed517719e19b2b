// Package store holds the local backing stores for the retrieval
// sub-searches: an HNSW vector index, two interchangeable full-text
// indexes (Bleve, SQLite FTS5) and a SQLite vehicle catalog for
// structured filtering.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Document is a unit of full-text indexing.
type Document struct {
	ID      string
	Text    string
	Summary vehicle.Summary
}

// VectorItem is a unit of vector indexing.
type VectorItem struct {
	ID      string
	Vector  []float32
	Summary vehicle.Summary
}

// KeywordIndex is a full-text index over vehicle documents.
type KeywordIndex interface {
	retrieval.FullTextStore

	// Index adds documents, replacing any with the same ID.
	Index(ctx context.Context, docs []Document) error
	Delete(ctx context.Context, ids []string) error
	Count() (int, error)
	Close() error
}

// DocumentFor builds the indexed document of a catalog record.
func DocumentFor(r vehicle.Record) Document {
	s := r.ToSummary()
	return Document{
		ID:      r.ID,
		Text:    vehicle.BuildVehicleText(s, true),
		Summary: s,
	}
}

// DimensionMismatchError indicates a vector of the wrong length.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (re-run 'otto seed' after changing embedding models)", e.Expected, e.Got)
}
