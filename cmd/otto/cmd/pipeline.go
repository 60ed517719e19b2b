package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/config"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/embed"
	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/expand"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/rerank"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/search"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/store"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/telemetry"
)

// pipeline is a fully wired search stack over one data directory.
type pipeline struct {
	orchestrator *search.Orchestrator
	metrics      *telemetry.PipelineMetrics
	embedder     embed.Embedder
	llm          expand.LLM
	scorer       *rerank.HTTPScorer

	closers []func() error
}

// openPipeline wires config → stores → collaborators → orchestrator.
// A store or collaborator that cannot be opened is left unset and its
// stage degrades on every request; only configuration errors fail here.
func openPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	durations, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	dataDir := cfg.Store.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, oerrors.StorageError("failed to create data directory", err).
			WithDetail("path", dataDir)
	}

	p := &pipeline{}
	var (
		vectors    retrieval.VectorStore
		fullText   retrieval.FullTextStore
		structured retrieval.StructuredStore
		embedder   retrieval.EmbeddingProvider
	)

	if catalog, err := store.NewSQLiteCatalog(store.CatalogPath(dataDir)); err != nil {
		logger.Warn("catalog_unavailable", oerrors.LogAttrs(err)...)
	} else {
		structured = catalog
		p.onClose(catalog.Close)
	}

	if keyword, err := store.NewKeywordIndex(dataDir, cfg.Store.KeywordBackend); err != nil {
		logger.Warn("keyword_index_unavailable", oerrors.LogAttrs(err)...)
	} else {
		fullText = keyword
		p.onClose(keyword.Close)
	}

	if emb, err := embed.NewEmbedder(ctx, cfg.Embeddings); err != nil {
		logger.Warn("embedder_unavailable", oerrors.LogAttrs(err)...)
	} else {
		p.embedder = emb
		embedder = emb
		p.onClose(emb.Close)

		hnsw, err := store.OpenHNSWVectorStore(store.VectorPath(dataDir), store.VectorStoreConfig{Dimensions: emb.Dimensions()})
		if err != nil {
			logger.Warn("vector_store_unavailable", oerrors.LogAttrs(err)...)
		} else {
			vectors = hnsw
			p.onClose(hnsw.Close)
		}
	}

	expander, err := p.openExpander(cfg, durations, logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	retriever := retrieval.NewRetriever(embedder, vectors, fullText, structured,
		retrieval.WithSubSearchTimeout(durations.SubSearchTimeout),
		retrieval.WithCircuitBreaker(retrieval.SourceVector, oerrors.NewCircuitBreaker("vector")),
		retrieval.WithCircuitBreaker(retrieval.SourceKeyword, oerrors.NewCircuitBreaker("keyword")),
		retrieval.WithCircuitBreaker(retrieval.SourceFilter, oerrors.NewCircuitBreaker("filter")),
		retrieval.WithLogger(logger),
	)

	var scorer rerank.CrossEncoderScorer
	if strings.EqualFold(cfg.Rerank.Provider, "http") {
		// Availability is checked per call so a late-starting server is picked up.
		s, err := rerank.NewHTTPScorer(ctx, rerank.HTTPScorerConfig{
			Endpoint:        cfg.Rerank.Endpoint,
			Model:           cfg.Rerank.Model,
			Timeout:         durations.RerankTimeout,
			SkipHealthCheck: true,
		})
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.scorer = s
		scorer = s
		p.onClose(s.Close)
	}
	reranker := rerank.New(scorer,
		rerank.WithBatchSize(cfg.Rerank.BatchSize),
		rerank.WithCircuitBreaker(oerrors.NewCircuitBreaker("rerank")),
		rerank.WithLogger(logger),
	)

	p.metrics = openMetrics(dataDir, logger, p)

	searchCfg, err := search.ConfigFrom(cfg)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	orchestrator, err := search.NewOrchestrator(expander, retriever, reranker, searchCfg,
		search.WithMetrics(p.metrics),
		search.WithLogger(logger),
	)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.orchestrator = orchestrator

	logger.Debug("pipeline_ready",
		slog.String("data_dir", dataDir),
		slog.Bool("vector", vectors != nil),
		slog.Bool("keyword", fullText != nil),
		slog.Bool("filter", structured != nil),
		slog.Bool("expansion", p.llm != nil),
		slog.Bool("rerank", scorer != nil))

	return p, nil
}

func (p *pipeline) openExpander(cfg *config.Config, d config.Durations, logger *slog.Logger) (*expand.Expander, error) {
	opts := []expand.Option{
		expand.WithTimeout(d.ExpansionTimeout),
		expand.WithCircuitBreaker(oerrors.NewCircuitBreaker("expansion")),
		expand.WithLogger(logger),
	}

	switch strings.ToLower(cfg.Expansion.Provider) {
	case "ollama":
		p.llm = expand.NewOllamaLLM(cfg.Expansion.Host, cfg.Expansion.Model)
	case "openai":
		llm, err := expand.NewOpenAILLM(cfg.Expansion.Host, cfg.Expansion.Model, cfg.Expansion.APIKey)
		if err != nil {
			return nil, err
		}
		p.llm = llm
	}

	switch strings.ToLower(cfg.Expansion.CacheBackend) {
	case "badger":
		path := cfg.Expansion.CachePath
		if path == "" {
			path = filepath.Join(cfg.Store.DataDir, store.ExpansionCacheDir)
		}
		cache, err := expand.OpenBadgerCache(path, d.CacheTTL, logger)
		if err != nil {
			// Expansion still works uncached.
			logger.Warn("expansion_cache_unavailable", oerrors.LogAttrs(err)...)
		} else {
			opts = append(opts, expand.WithCache(cache))
			p.onClose(cache.Close)
		}
	default:
		opts = append(opts, expand.WithCache(expand.NewMemoryCache(cfg.Expansion.CacheSize, d.CacheTTL)))
	}

	return expand.New(p.llm, opts...), nil
}

// openMetrics persists telemetry to telemetry.db, or keeps it in memory
// when the database cannot be opened.
func openMetrics(dataDir string, logger *slog.Logger, p *pipeline) *telemetry.PipelineMetrics {
	db, err := store.OpenSQLite(filepath.Join(dataDir, store.TelemetryFile))
	if err != nil {
		logger.Warn("telemetry_store_unavailable", slog.String("error", err.Error()))
		return telemetry.NewPipelineMetrics(nil, telemetry.DefaultConfig())
	}
	ms, err := telemetry.NewSQLiteMetricsStore(db)
	if err != nil {
		_ = db.Close()
		logger.Warn("telemetry_store_unavailable", slog.String("error", err.Error()))
		return telemetry.NewPipelineMetrics(nil, telemetry.DefaultConfig())
	}

	m := telemetry.NewPipelineMetrics(ms, telemetry.DefaultConfig())
	// Metrics flush before the database closes.
	p.onClose(db.Close)
	p.onClose(m.Close)
	return m
}

func (p *pipeline) onClose(fn func() error) {
	p.closers = append(p.closers, fn)
}

// Close releases everything in reverse opening order.
func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
