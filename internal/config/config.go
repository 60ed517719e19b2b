package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-directory override file.
const ProjectConfigName = ".otto.yaml"

// Config represents the complete otto configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Fusion     FusionConfig     `yaml:"fusion" json:"fusion"`
	Expansion  ExpansionConfig  `yaml:"expansion" json:"expansion"`
	Rerank     RerankConfig     `yaml:"rerank" json:"rerank"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Seed       SeedConfig       `yaml:"seed" json:"seed"`
}

// SearchConfig configures the request-level pipeline.
type SearchConfig struct {
	// TopK is the default number of results when a request omits it.
	TopK int `yaml:"top_k" json:"top_k"`

	// RetrievalLimit is the per-source breadth. 0 means 2 x top_k.
	RetrievalLimit int `yaml:"retrieval_limit" json:"retrieval_limit"`

	// InitialRetrievalLimit caps the fused working set handed to re-ranking.
	InitialRetrievalLimit int `yaml:"initial_retrieval_limit" json:"initial_retrieval_limit"`

	// TotalBudget is the end-to-end budget the re-ranking deadline is
	// computed from (e.g. "5s").
	TotalBudget string `yaml:"total_budget" json:"total_budget"`

	// SubSearchTimeout bounds each retrieval sub-search. Empty means none.
	SubSearchTimeout string `yaml:"sub_search_timeout" json:"sub_search_timeout"`
}

// FusionConfig configures weighted reciprocal rank fusion.
// Weights need not sum to 1.
type FusionConfig struct {
	RRFConstant   int     `yaml:"rrf_constant" json:"rrf_constant"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	FilterWeight  float64 `yaml:"filter_weight" json:"filter_weight"`
}

// ExpansionConfig configures the LLM query expander and its cache.
type ExpansionConfig struct {
	// Provider is "ollama", "openai" (any OpenAI-compatible endpoint) or "none".
	Provider string `yaml:"provider" json:"provider"`
	Host     string `yaml:"host" json:"host"`
	Model    string `yaml:"model" json:"model"`
	Timeout  string `yaml:"timeout" json:"timeout"`

	CacheTTL     string `yaml:"cache_ttl" json:"cache_ttl"`
	CacheBackend string `yaml:"cache_backend" json:"cache_backend"`
	CacheSize    int    `yaml:"cache_size" json:"cache_size"`
	// CachePath is the badger directory. Empty means <data_dir>/expansion-cache.
	CachePath string `yaml:"cache_path" json:"cache_path"`

	APIKey string `yaml:"-" json:"-"`
}

// RerankConfig configures the cross-encoder scorer.
type RerankConfig struct {
	// Provider is "http" or "none". With "none" every request takes the
	// fallback path and reports reranking as degraded.
	Provider  string `yaml:"provider" json:"provider"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Model     string `yaml:"model" json:"model"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	// Timeout bounds a single scoring HTTP call; the stage deadline still applies.
	Timeout string `yaml:"timeout" json:"timeout"`
}

// EmbeddingsConfig configures the query embedder.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Host       string `yaml:"host" json:"host"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`

	APIKey string `yaml:"-" json:"-"`
}

// StoreConfig configures the local stores backing the collaborators.
type StoreConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// KeywordBackend is "bleve" or "sqlite".
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// SeedConfig configures catalog seeding.
type SeedConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

// Durations holds the parsed duration fields of a Config.
type Durations struct {
	TotalBudget      time.Duration
	SubSearchTimeout time.Duration
	ExpansionTimeout time.Duration
	CacheTTL         time.Duration
	RerankTimeout    time.Duration
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}

	return &Config{
		Version: 1,
		Search: SearchConfig{
			TopK:                  10,
			RetrievalLimit:        0,
			InitialRetrievalLimit: 50,
			TotalBudget:           "5s",
		},
		Fusion: FusionConfig{
			RRFConstant:   60,
			VectorWeight:  0.5,
			KeywordWeight: 0.3,
			FilterWeight:  0.2,
		},
		Expansion: ExpansionConfig{
			Provider:     "ollama",
			Host:         "http://localhost:11434",
			Model:        "llama3.2",
			Timeout:      "10s",
			CacheTTL:     "1h",
			CacheBackend: "memory",
			CacheSize:    10000,
		},
		Rerank: RerankConfig{
			Provider:  "http",
			Endpoint:  "http://localhost:9659",
			Model:     "cross-encoder/ms-marco-MiniLM-L-6-v2",
			BatchSize: 10,
			Timeout:   "3s",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Host:       "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			CacheSize:  1000,
		},
		Store: StoreConfig{
			DataDir:        defaultDataDir(),
			KeywordBackend: "bleve",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Seed: SeedConfig{
			Workers: workers,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".otto", "data")
	}
	return filepath.Join(home, ".otto", "data")
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/otto/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/otto/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "otto", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "otto", "config.yaml")
	}
	return filepath.Join(home, ".config", "otto", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for dir. Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/otto/config.yaml)
//  3. Project config (.otto.yaml in dir)
//  4. Environment variables (OTTO_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	mergeInt(&c.Search.TopK, other.Search.TopK)
	mergeInt(&c.Search.RetrievalLimit, other.Search.RetrievalLimit)
	mergeInt(&c.Search.InitialRetrievalLimit, other.Search.InitialRetrievalLimit)
	mergeString(&c.Search.TotalBudget, other.Search.TotalBudget)
	mergeString(&c.Search.SubSearchTimeout, other.Search.SubSearchTimeout)

	// A weight of 0 in YAML reads as "unset"; disable a source via env instead.
	mergeInt(&c.Fusion.RRFConstant, other.Fusion.RRFConstant)
	mergeFloat(&c.Fusion.VectorWeight, other.Fusion.VectorWeight)
	mergeFloat(&c.Fusion.KeywordWeight, other.Fusion.KeywordWeight)
	mergeFloat(&c.Fusion.FilterWeight, other.Fusion.FilterWeight)

	mergeString(&c.Expansion.Provider, other.Expansion.Provider)
	mergeString(&c.Expansion.Host, other.Expansion.Host)
	mergeString(&c.Expansion.Model, other.Expansion.Model)
	mergeString(&c.Expansion.Timeout, other.Expansion.Timeout)
	mergeString(&c.Expansion.CacheTTL, other.Expansion.CacheTTL)
	mergeString(&c.Expansion.CacheBackend, other.Expansion.CacheBackend)
	mergeInt(&c.Expansion.CacheSize, other.Expansion.CacheSize)
	mergeString(&c.Expansion.CachePath, other.Expansion.CachePath)

	mergeString(&c.Rerank.Provider, other.Rerank.Provider)
	mergeString(&c.Rerank.Endpoint, other.Rerank.Endpoint)
	mergeString(&c.Rerank.Model, other.Rerank.Model)
	mergeInt(&c.Rerank.BatchSize, other.Rerank.BatchSize)
	mergeString(&c.Rerank.Timeout, other.Rerank.Timeout)

	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Host, other.Embeddings.Host)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)

	mergeString(&c.Store.DataDir, other.Store.DataDir)
	mergeString(&c.Store.KeywordBackend, other.Store.KeywordBackend)

	mergeString(&c.Server.Transport, other.Server.Transport)
	mergeString(&c.Server.LogLevel, other.Server.LogLevel)

	mergeInt(&c.Seed.Workers, other.Seed.Workers)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies OTTO_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	envInt("OTTO_TOP_K", &c.Search.TopK)
	envString("OTTO_TOTAL_BUDGET", &c.Search.TotalBudget)
	envInt("OTTO_RRF_CONSTANT", &c.Fusion.RRFConstant)

	// Explicit zero weights are honoured here.
	envWeight("OTTO_VECTOR_WEIGHT", &c.Fusion.VectorWeight)
	envWeight("OTTO_KEYWORD_WEIGHT", &c.Fusion.KeywordWeight)
	envWeight("OTTO_FILTER_WEIGHT", &c.Fusion.FilterWeight)

	envString("OTTO_EXPANSION_PROVIDER", &c.Expansion.Provider)
	envString("OTTO_EXPANSION_HOST", &c.Expansion.Host)
	envString("OTTO_EXPANSION_MODEL", &c.Expansion.Model)
	envString("OTTO_EXPANSION_CACHE", &c.Expansion.CacheBackend)

	envString("OTTO_RERANK_PROVIDER", &c.Rerank.Provider)
	envString("OTTO_RERANK_ENDPOINT", &c.Rerank.Endpoint)

	envString("OTTO_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	envString("OTTO_EMBEDDINGS_MODEL", &c.Embeddings.Model)

	// OTTO_OLLAMA_HOST points every Ollama-backed collaborator at one host.
	if v := os.Getenv("OTTO_OLLAMA_HOST"); v != "" {
		if strings.EqualFold(c.Embeddings.Provider, "ollama") {
			c.Embeddings.Host = v
		}
		if strings.EqualFold(c.Expansion.Provider, "ollama") {
			c.Expansion.Host = v
		}
	}
	if v := os.Getenv("OTTO_OPENAI_API_KEY"); v != "" {
		c.Expansion.APIKey = v
		c.Embeddings.APIKey = v
	}

	envString("OTTO_DATA_DIR", &c.Store.DataDir)
	envString("OTTO_KEYWORD_BACKEND", &c.Store.KeywordBackend)
	envString("OTTO_LOG_LEVEL", &c.Server.LogLevel)
	envString("OTTO_TRANSPORT", &c.Server.Transport)
	envInt("OTTO_SEED_WORKERS", &c.Seed.Workers)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			*dst = n
		}
	}
}

func envWeight(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			*dst = w
		}
	}
}

// Durations parses the duration-valued fields.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"search.total_budget", c.Search.TotalBudget, &d.TotalBudget},
		{"search.sub_search_timeout", c.Search.SubSearchTimeout, &d.SubSearchTimeout},
		{"expansion.timeout", c.Expansion.Timeout, &d.ExpansionTimeout},
		{"expansion.cache_ttl", c.Expansion.CacheTTL, &d.CacheTTL},
		{"rerank.timeout", c.Rerank.Timeout, &d.RerankTimeout},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(f.value)
		if err != nil {
			return Durations{}, fmt.Errorf("%s: invalid duration %q: %w", f.name, f.value, err)
		}
		if parsed < 0 {
			return Durations{}, fmt.Errorf("%s must be non-negative, got %s", f.name, f.value)
		}
		*f.dst = parsed
	}
	return d, nil
}

// EffectiveRetrievalLimit returns the per-source breadth for topK.
func (c *Config) EffectiveRetrievalLimit(topK int) int {
	if c.Search.RetrievalLimit > 0 {
		return c.Search.RetrievalLimit
	}
	return 2 * topK
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.TopK < 1 {
		return fmt.Errorf("search.top_k must be at least 1, got %d", c.Search.TopK)
	}
	if c.Search.RetrievalLimit < 0 {
		return fmt.Errorf("search.retrieval_limit must be non-negative, got %d", c.Search.RetrievalLimit)
	}
	if c.Search.InitialRetrievalLimit < 1 {
		return fmt.Errorf("search.initial_retrieval_limit must be at least 1, got %d", c.Search.InitialRetrievalLimit)
	}

	if c.Fusion.RRFConstant < 1 {
		return fmt.Errorf("fusion.rrf_constant must be positive, got %d", c.Fusion.RRFConstant)
	}
	for name, w := range map[string]float64{
		"vector_weight":  c.Fusion.VectorWeight,
		"keyword_weight": c.Fusion.KeywordWeight,
		"filter_weight":  c.Fusion.FilterWeight,
	} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("fusion.%s must be a non-negative number, got %f", name, w)
		}
	}
	if c.Fusion.VectorWeight+c.Fusion.KeywordWeight+c.Fusion.FilterWeight == 0 {
		return fmt.Errorf("fusion weights must not all be zero")
	}

	if err := oneOf("expansion.provider", c.Expansion.Provider, "ollama", "openai", "none"); err != nil {
		return err
	}
	if err := oneOf("expansion.cache_backend", c.Expansion.CacheBackend, "memory", "badger"); err != nil {
		return err
	}
	if c.Expansion.CacheSize < 1 {
		return fmt.Errorf("expansion.cache_size must be at least 1, got %d", c.Expansion.CacheSize)
	}

	if err := oneOf("rerank.provider", c.Rerank.Provider, "http", "none"); err != nil {
		return err
	}
	if c.Rerank.BatchSize < 1 {
		return fmt.Errorf("rerank.batch_size must be at least 1, got %d", c.Rerank.BatchSize)
	}

	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "ollama", "openai", "static"); err != nil {
		return err
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	if err := oneOf("store.keyword_backend", c.Store.KeywordBackend, "bleve", "sqlite"); err != nil {
		return err
	}
	if err := oneOf("server.transport", c.Server.Transport, "stdio"); err != nil {
		return err
	}
	if err := oneOf("server.log_level", c.Server.LogLevel, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if c.Seed.Workers < 1 {
		return fmt.Errorf("seed.workers must be at least 1, got %d", c.Seed.Workers)
	}

	if _, err := c.Durations(); err != nil {
		return err
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
