package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/mcp"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run an MCP server exposing the search_vehicles and pipeline_stats tools.

stdout carries JSON-RPC only; logs go to ~/.otto/logs/otto.log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if transport == "" {
				transport = cfg.Server.Transport
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			logger := slog.Default()
			p, err := openPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			server, err := mcp.NewServer(p.orchestrator,
				mcp.WithStats(p.metrics),
				mcp.WithLogger(logger),
			)
			if err != nil {
				return err
			}
			return server.Serve(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio (default from config)")

	return cmd
}
