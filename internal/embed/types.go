// Package embed turns query and listing text into vectors.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

// Defaults shared by the embedders.
const (
	DefaultDimensions = 768
	DefaultBatchSize  = 32
	MaxBatchSize      = 256
	DefaultTimeout    = 30 * time.Second
)

// ErrClosed is returned by a closed embedder.
var ErrClosed = errors.New("embedder is closed")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int
	ModelName() string

	// Available reports whether the backend answers.
	Available(ctx context.Context) bool

	Close() error
}

// normalizeVector scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sumSquares)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
