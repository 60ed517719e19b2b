package embed

import "time"

// Ollama defaults.
const (
	DefaultOllamaHost    = "http://localhost:11434"
	DefaultOllamaModel   = "nomic-embed-text"
	OllamaConnectTimeout = 5 * time.Second
	OllamaPoolSize       = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host  string
	Model string

	// Dimensions overrides detection; zero probes the model on start.
	Dimensions int

	BatchSize int

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration

	PoolSize int

	// SkipHealthCheck skips the model lookup and dimension probe.
	SkipHealthCheck bool
}

// OllamaEmbedRequest is the body of POST /api/embed.
type OllamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// OllamaEmbedResponse is the reply of POST /api/embed.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelInfo is one entry of GET /api/tags.
type OllamaModelInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// OllamaModelListResponse is the reply of GET /api/tags.
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}
