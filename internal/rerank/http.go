package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
)

// HTTP scorer defaults.
const (
	DefaultEndpoint = "http://localhost:9659"
	DefaultModel    = "cross-encoder/ms-marco-MiniLM-L-6-v2"
)

// HTTPScorerConfig configures an HTTPScorer.
type HTTPScorerConfig struct {
	// Endpoint is the scoring server base URL.
	Endpoint string

	// Model is passed through to the server.
	Model string

	// Timeout bounds one call. The stage deadline still applies; zero
	// leaves only the stage deadline.
	Timeout time.Duration

	// SkipHealthCheck skips the /health probe during creation.
	SkipHealthCheck bool
}

type scoreRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// HTTPScorer calls a cross-encoder server:
// POST {endpoint}/score {query, documents, model} -> {scores}.
type HTTPScorer struct {
	client   *http.Client
	config   HTTPScorerConfig
	endpoint string

	mu     sync.RWMutex
	closed bool
}

var _ CrossEncoderScorer = (*HTTPScorer)(nil)

// NewHTTPScorer creates a scorer, probing /health unless skipped.
func NewHTTPScorer(ctx context.Context, cfg HTTPScorerConfig) (*HTTPScorer, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	s := &HTTPScorer{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config:   cfg,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.healthCheck(checkCtx); err != nil {
			return nil, oerrors.CollaboratorError("cross-encoder health check failed", err).
				WithSuggestion("Start the scoring server or set rerank.provider to none")
		}
	}

	slog.Debug("http_scorer_created",
		slog.String("endpoint", s.endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return s, nil
}

func (s *HTTPScorer) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to scoring server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("scoring server unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// ScoreBatch returns one raw logit per document.
func (s *HTTPScorer) ScoreBatch(ctx context.Context, query string, documents []string) ([]float64, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("scorer is closed")
	}
	if len(documents) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(scoreRequest{Query: query, Documents: documents, Model: s.config.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, oerrors.CollaboratorError("score request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, oerrors.New(oerrors.ErrCodeCollaboratorResponse,
			fmt.Sprintf("score failed (status %d): %s", resp.StatusCode, string(respBody)), nil)
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, oerrors.New(oerrors.ErrCodeCollaboratorResponse, "failed to decode score response", err)
	}

	slog.Debug("score_batch_http",
		slog.Int("documents", len(documents)),
		slog.Duration("duration", time.Since(start)))

	return result.Scores, nil
}

// Available reports whether the scoring server answers /health.
func (s *HTTPScorer) Available(ctx context.Context) bool {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.healthCheck(checkCtx) == nil
}

// Close releases idle connections.
func (s *HTTPScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if transport, ok := s.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
