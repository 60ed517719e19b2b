package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	// BaseURL is empty for api.openai.com.
	BaseURL    string
	Model      string
	Token      string
	Dimensions int
	BatchSize  int
}

// OpenAIEmbedder calls any OpenAI-compatible embeddings API through
// langchaingo.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
	dims     int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder. Dimensions must be set since the
// endpoint is not probed.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, oerrors.ValidationError("embeddings.model is required for the openai provider", nil)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	// Local OpenAI-compatible servers ignore the token but the client
	// requires one.
	if cfg.Token == "" {
		cfg.Token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &OpenAIEmbedder{embedder: emb, model: cfg.Model, dims: cfg.Dimensions}, nil
}

// Embed returns the unit-length embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	v, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, oerrors.CollaboratorError("embedding request failed", err)
	}
	if len(v) != e.dims {
		return nil, oerrors.New(oerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, configured %d", len(v), e.dims), nil).
			WithSuggestion("Set embeddings.dimensions to the model's output size")
	}
	return normalizeVector(v), nil
}

// EmbedBatch embeds texts in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, oerrors.CollaboratorError("embedding request failed", err)
	}
	if len(vecs) != len(texts) {
		return nil, oerrors.New(oerrors.ErrCodeCollaboratorResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vecs)), nil)
	}
	for i := range vecs {
		normalizeVector(vecs[i])
	}
	return vecs, nil
}

// Dimensions returns the configured embedding size.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the configured model.
func (e *OpenAIEmbedder) ModelName() string { return e.model }

// Available embeds a short probe.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.Embed(ctx, "ping")
	return err == nil
}

func (e *OpenAIEmbedder) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
