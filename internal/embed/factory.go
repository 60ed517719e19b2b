package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/config"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// NewEmbedder builds the configured embedder wrapped in a query cache.
// There is no silent fallback to static embeddings: vectors from different
// providers are not comparable with an already seeded index.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama, "":
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderOpenAI:
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.Host,
			Model:      cfg.Model,
			Token:      cfg.APIKey,
			Dimensions: cfg.Dimensions,
		})
	case ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s (valid options: ollama, openai, static)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("embedder_ready",
		slog.String("provider", cfg.Provider),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	if cfg.CacheSize < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
