// Package validation runs golden relevance queries against the search
// pipeline through the search_vehicles MCP tool, the same surface agents
// use.
//
// Queries are data-driven, loaded from a YAML file so the suite can grow
// with the catalog without rebuilding:
//
//	tier1:
//	  - id: T1-Q1
//	    name: pickup by make
//	    query: ford pickup truck
//	    expected: [f150]
//
// Tier 1 queries are must-pass, Tier 2 are quality targets, and negative
// queries only need to complete without crashing the server.
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/mcp"
)

// DefaultTopK is how deep a query looks for its expected vehicles.
const DefaultTopK = 10

// QuerySpec defines a golden query with expected results.
type QuerySpec struct {
	ID       string         `yaml:"id" json:"id"`
	Name     string         `yaml:"name" json:"name"`
	Query    string         `yaml:"query" json:"query"`
	Filters  map[string]any `yaml:"filters,omitempty" json:"filters,omitempty"`
	Expected []string       `yaml:"expected" json:"expected"` // vehicle IDs, any one matching passes
	Notes    string         `yaml:"notes,omitempty" json:"notes,omitempty"`
	Tier     int            `yaml:"-" json:"tier"` // 0 for negative
}

// QueryConfig holds all validation queries loaded from YAML.
type QueryConfig struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadQueries reads a query file.
func LoadQueries(path string) (*QueryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}
	return ParseQueries(data)
}

// ParseQueries parses query YAML and assigns tiers by section.
func ParseQueries(data []byte) (*QueryConfig, error) {
	var cfg QueryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse queries YAML: %w", err)
	}

	seen := make(map[string]bool)
	sections := []struct {
		specs []QuerySpec
		tier  int
	}{{cfg.Tier1, 1}, {cfg.Tier2, 2}, {cfg.Negative, 0}}
	for _, s := range sections {
		for i := range s.specs {
			spec := &s.specs[i]
			spec.Tier = s.tier
			if spec.ID == "" {
				return nil, fmt.Errorf("query %q: missing id", spec.Name)
			}
			if seen[spec.ID] {
				return nil, fmt.Errorf("duplicate query id %s", spec.ID)
			}
			seen[spec.ID] = true
			if s.tier > 0 && len(spec.Expected) == 0 {
				return nil, fmt.Errorf("query %s: tier %d queries need expected ids", spec.ID, s.tier)
			}
		}
	}
	return &cfg, nil
}

// TestResult captures the outcome of a single query.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ns"`
	TopResults []string      `json:"top_results"` // vehicle IDs returned
	MatchedAt  int           `json:"matched_at"`  // 0-based position of first match, -1 if not found
	Degraded   []string      `json:"degraded,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// TierSummary counts passes for one tier.
type TierSummary struct {
	Pass  int `json:"pass"`
	Total int `json:"total"`
}

// Rate is the pass percentage, 100 for an empty tier.
func (s TierSummary) Rate() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Pass) / float64(s.Total) * 100
}

func (s *TierSummary) add(r TestResult) {
	s.Total++
	if r.Passed {
		s.Pass++
	}
}

// ValidationResult captures results of a full validation run.
type ValidationResult struct {
	Timestamp       time.Time    `json:"timestamp"`
	Tier1           []TestResult `json:"tier1"`
	Tier2           []TestResult `json:"tier2"`
	Negative        []TestResult `json:"negative"`
	Tier1Summary    TierSummary  `json:"tier1_summary"`
	Tier2Summary    TierSummary  `json:"tier2_summary"`
	NegativeSummary TierSummary  `json:"negative_summary"`
}

// Passed reports whether every Tier 1 and negative query passed.
func (r *ValidationResult) Passed() bool {
	return r.Tier1Summary.Pass == r.Tier1Summary.Total &&
		r.NegativeSummary.Pass == r.NegativeSummary.Total
}

// Validator runs validation queries against an in-process MCP server.
type Validator struct {
	server  *sdkmcp.ServerSession
	session *sdkmcp.ClientSession
	topK    int
}

// Option configures a Validator.
type Option func(*Validator)

// WithTopK sets how many results each query requests.
func WithTopK(k int) Option {
	return func(v *Validator) {
		if k > 0 {
			v.topK = k
		}
	}
}

// NewValidator serves searcher over an in-memory MCP transport and
// connects a client to it.
func NewValidator(ctx context.Context, searcher mcp.Searcher, opts ...Option) (*Validator, error) {
	srv, err := mcp.NewServer(searcher)
	if err != nil {
		return nil, err
	}

	v := &Validator{topK: DefaultTopK}
	for _, opt := range opts {
		opt(v)
	}

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	v.server, err = srv.MCPServer().Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start validation server: %w", err)
	}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "otto-validate", Version: "v1"}, nil)
	v.session, err = client.Connect(ctx, clientTransport, nil)
	if err != nil {
		_ = v.server.Close()
		return nil, fmt.Errorf("failed to connect validation client: %w", err)
	}
	return v, nil
}

// Close disconnects the client and server sessions.
func (v *Validator) Close() error {
	err := v.session.Close()
	_ = v.server.Close()
	return err
}

// RunQuery executes a single query and returns the result.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	start := time.Now()
	result := TestResult{Spec: spec, MatchedAt: -1}

	args := map[string]any{"query": spec.Query, "top_k": v.topK}
	if len(spec.Filters) > 0 {
		args["filters"] = spec.Filters
	}
	res, err := v.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: mcp.ToolSearchVehicles, Arguments: args})
	result.Duration = time.Since(start)

	if err == nil && res.IsError {
		err = errors.New(textOf(res))
	}
	var out mcp.SearchVehiclesOutput
	if err == nil {
		err = json.Unmarshal([]byte(textOf(res)), &out)
	}
	if err != nil {
		// Negative queries only need to come back.
		if spec.Tier == 0 {
			result.Passed = true
		}
		result.Error = err.Error()
		return result
	}

	result.Degraded = out.Degraded
	for _, r := range out.Results {
		result.TopResults = append(result.TopResults, r.ID)
	}
	if len(spec.Expected) == 0 {
		result.Passed = true
	} else {
		result.Passed, result.MatchedAt = checkExpected(result.TopResults, spec.Expected)
	}
	return result
}

// RunAll executes every query in cfg.
func (v *Validator) RunAll(ctx context.Context, cfg *QueryConfig) *ValidationResult {
	result := &ValidationResult{Timestamp: time.Now()}

	for _, spec := range cfg.Tier1 {
		tr := v.RunQuery(ctx, spec)
		result.Tier1 = append(result.Tier1, tr)
		result.Tier1Summary.add(tr)
	}
	for _, spec := range cfg.Tier2 {
		tr := v.RunQuery(ctx, spec)
		result.Tier2 = append(result.Tier2, tr)
		result.Tier2Summary.add(tr)
	}
	for _, spec := range cfg.Negative {
		tr := v.RunQuery(ctx, spec)
		result.Negative = append(result.Negative, tr)
		result.NegativeSummary.add(tr)
	}
	return result
}

func textOf(res *sdkmcp.CallToolResult) string {
	for _, c := range res.Content {
		if t, ok := c.(*sdkmcp.TextContent); ok {
			return t.Text
		}
	}
	return ""
}

// checkExpected returns the position of the first expected ID in results.
func checkExpected(results, expected []string) (bool, int) {
	for i, id := range results {
		for _, exp := range expected {
			if id == exp {
				return true, i
			}
		}
	}
	return false, -1
}
