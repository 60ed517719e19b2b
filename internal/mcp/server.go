package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/search"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/telemetry"
	"github.com/JB5579/Otto-Match-V2-sub001/pkg/version"
)

// Tool names.
const (
	ToolSearchVehicles = "search_vehicles"
	ToolPipelineStats  = "pipeline_stats"
)

// Searcher runs one search request.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// StatsProvider returns the current metrics snapshot.
type StatsProvider interface {
	Snapshot() *telemetry.Snapshot
}

var (
	_ Searcher      = (*search.Orchestrator)(nil)
	_ StatsProvider = (*telemetry.PipelineMetrics)(nil)
)

// Server bridges MCP clients with the search pipeline.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	stats    StatsProvider
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStats enables the pipeline_stats tool's data source.
func WithStats(p StatsProvider) Option {
	return func(s *Server) {
		s.stats = p
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates an MCP server backed by searcher.
func NewServer(searcher Searcher, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}

	s := &Server{
		searcher: searcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "otto",
		Version: version.Version,
	}, nil)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolSearchVehicles,
		Description: "Search the vehicle inventory with a natural-language request such as " +
			"\"reliable family SUV under $30k\". Returns ranked vehicles with relevance scores " +
			"and the stages that fell back, if any. Explicit filters override ones inferred from the query.",
	}, s.handleSearchVehicles)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolPipelineStats,
		Description: "Report search pipeline health: query counts, zero-result queries, latency histogram and how often each stage degraded.",
	}, s.handlePipelineStats)

	s.logger.Debug("MCP tools registered", slog.Int("count", 2))
}

func (s *Server) handleSearchVehicles(ctx context.Context, _ *mcp.CallToolRequest, input SearchVehiclesInput) (
	*mcp.CallToolResult,
	SearchVehiclesOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchVehiclesOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if input.TopK < 0 {
		return nil, SearchVehiclesOutput{}, NewInvalidParamsError("top_k must not be negative")
	}

	resp, err := s.searcher.Search(ctx, search.Request{
		Query:   input.Query,
		Filters: input.Filters,
		TopK:    input.TopK,
	})
	if err != nil {
		s.logger.Warn("tool_failed",
			slog.String("tool", ToolSearchVehicles),
			slog.String("error", err.Error()))
		return nil, SearchVehiclesOutput{}, MapError(err)
	}
	return nil, ToSearchVehiclesOutput(resp), nil
}

func (s *Server) handlePipelineStats(_ context.Context, _ *mcp.CallToolRequest, _ PipelineStatsInput) (
	*mcp.CallToolResult,
	PipelineStatsOutput,
	error,
) {
	if s.stats == nil {
		return nil, PipelineStatsOutput{}, MapError(ErrStatsUnavailable)
	}
	return nil, ToPipelineStatsOutput(s.stats.Snapshot()), nil
}

// Serve runs the server on transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
