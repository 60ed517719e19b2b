// Package seed loads a vehicle catalog into the local stores: the SQLite
// catalog, the keyword index and the HNSW vector index.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/embed"
	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/store"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/ui"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// DefaultBatchSize is the number of records embedded per task.
const DefaultBatchSize = 32

// Catalog receives full records.
type Catalog interface {
	Upsert(ctx context.Context, records []vehicle.Record) error
}

// VectorIndex receives embeddings and persists them.
type VectorIndex interface {
	Add(ctx context.Context, items []store.VectorItem) error
	Save(path string) error
}

// Stores are the seeding targets.
type Stores struct {
	Catalog Catalog
	Keyword store.KeywordIndex
	Vectors VectorIndex
	// VectorPath is where Vectors is saved after seeding.
	VectorPath string
}

// Result summarizes a run.
type Result struct {
	Vehicles int
	Duration time.Duration
	Embed    time.Duration
	Store    time.Duration
}

// Seeder embeds records on a worker pool and writes them to every store.
type Seeder struct {
	embedder  embed.Embedder
	stores    Stores
	lock      *store.DataLock
	workers   int
	batchSize int
	renderer  ui.Renderer
	logger    *slog.Logger
}

// Option configures a Seeder.
type Option func(*Seeder)

// WithWorkers sets the embedding pool size.
func WithWorkers(n int) Option {
	return func(s *Seeder) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBatchSize sets records per embedding call.
func WithBatchSize(n int) Option {
	return func(s *Seeder) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRenderer reports progress to r.
func WithRenderer(r ui.Renderer) Option {
	return func(s *Seeder) {
		if r != nil {
			s.renderer = r
		}
	}
}

// WithLock holds lock for the duration of Seed.
func WithLock(lock *store.DataLock) Option {
	return func(s *Seeder) { s.lock = lock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Seeder) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Seeder.
func New(embedder embed.Embedder, stores Stores, opts ...Option) (*Seeder, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if stores.Catalog == nil || stores.Keyword == nil || stores.Vectors == nil {
		return nil, errors.New("catalog, keyword and vector stores are required")
	}

	s := &Seeder{
		embedder:  embedder,
		stores:    stores,
		workers:   max(runtime.NumCPU()/2, 1),
		batchSize: DefaultBatchSize,
		renderer:  ui.Nop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Seed embeds and stores records. Nothing is written unless every batch
// embeds successfully. A held data lock fails fast with ErrCodeStoreLocked.
func (s *Seeder) Seed(ctx context.Context, records []vehicle.Record) (Result, error) {
	start := time.Now()

	if s.lock != nil {
		acquired, err := s.lock.TryLock()
		if err != nil {
			return Result{}, oerrors.StorageError("failed to lock data directory", err)
		}
		if !acquired {
			return Result{}, oerrors.New(oerrors.ErrCodeStoreLocked, "data directory is locked by another process", nil).
				WithSuggestion("Wait for the other 'otto seed' to finish")
		}
		defer func() { _ = s.lock.Unlock() }()
	}

	s.logger.Info("seed_started",
		slog.Int("vehicles", len(records)),
		slog.Int("workers", s.workers),
		slog.String("model", s.embedder.ModelName()))

	docs := make([]store.Document, len(records))
	for i, r := range records {
		docs[i] = store.DocumentFor(r)
	}

	embedStart := time.Now()
	vectors, err := s.embedAll(ctx, docs)
	if err != nil {
		return Result{}, err
	}
	embedDur := time.Since(embedStart)

	storeStart := time.Now()
	if err := s.write(ctx, records, docs, vectors); err != nil {
		return Result{}, err
	}

	result := Result{
		Vehicles: len(records),
		Duration: time.Since(start),
		Embed:    embedDur,
		Store:    time.Since(storeStart),
	}
	s.renderer.Complete(ui.CompletionStats{
		Vehicles:   result.Vehicles,
		Duration:   result.Duration,
		Embed:      result.Embed,
		Store:      result.Store,
		Model:      s.embedder.ModelName(),
		Dimensions: s.embedder.Dimensions(),
	})
	s.logger.Info("seed_completed",
		slog.Int("vehicles", result.Vehicles),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// embedAll embeds document texts in batches on an ants pool. The first
// failure cancels the remaining batches.
func (s *Seeder) embedAll(ctx context.Context, docs []store.Document) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	if len(docs) == 0 {
		return vectors, nil
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return nil, oerrors.InternalError("failed to create worker pool", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		done     atomic.Int64
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	total := len(docs)
	s.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: total})

	for start := 0; start < total; start += s.batchSize {
		end := min(start+s.batchSize, total)
		batch := docs[start:end]
		offset := start

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}

			texts := make([]string, len(batch))
			for i, d := range batch {
				texts[i] = d.Text
			}
			vecs, err := s.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				fail(oerrors.New(oerrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("failed to embed vehicles %s..%s", batch[0].ID, batch[len(batch)-1].ID), err))
				return
			}
			copy(vectors[offset:], vecs)

			n := done.Add(int64(len(batch)))
			s.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: int(n), Total: total})
		})
		if err != nil {
			wg.Done()
			fail(oerrors.InternalError("failed to submit embedding task", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		s.renderer.AddError(ui.ErrorEvent{Err: firstErr})
		return nil, firstErr
	}
	return vectors, nil
}

func (s *Seeder) write(ctx context.Context, records []vehicle.Record, docs []store.Document, vectors [][]float32) error {
	if len(records) == 0 {
		return nil
	}

	s.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageStoring, Message: "catalog"})
	if err := s.stores.Catalog.Upsert(ctx, records); err != nil {
		return oerrors.StorageError("failed to write catalog", err)
	}

	s.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageStoring, Message: "keyword index"})
	if err := s.stores.Keyword.Index(ctx, docs); err != nil {
		return oerrors.StorageError("failed to write keyword index", err)
	}

	s.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageStoring, Message: "vector index"})
	items := make([]store.VectorItem, len(docs))
	for i, d := range docs {
		items[i] = store.VectorItem{ID: d.ID, Vector: vectors[i], Summary: d.Summary}
	}
	if err := s.stores.Vectors.Add(ctx, items); err != nil {
		var dm store.DimensionMismatchError
		if errors.As(err, &dm) {
			return oerrors.New(oerrors.ErrCodeDimensionMismatch, "embedding size does not match the vector index", err).
				WithSuggestion("Set embeddings.dimensions to the model's output size, or remove the vector index and re-seed")
		}
		return oerrors.StorageError("failed to write vector index", err)
	}
	if s.stores.VectorPath != "" {
		if err := s.stores.Vectors.Save(s.stores.VectorPath); err != nil {
			return oerrors.StorageError("failed to save vector index", err)
		}
	}
	return nil
}
