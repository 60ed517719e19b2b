package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/output"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	filters []string // key=value
	topK    int
	format  string // "text", "json"
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vehicle catalog",
		Long: `Search the seeded catalog with a natural-language request.

Filters given with --filter override any the query implies. Accepted keys:
make, type, condition, min_price, max_price, min_year, max_year, max_mileage.

Examples:
  otto search "reliable family suv under 30k"
  otto search "pickup truck" --filter make=ford --filter max_mileage=60000
  otto search "electric hatchback" --top-k 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, g, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "Structured filter as key=value (repeatable)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, g *globalOptions, query string, opts searchOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	filters, err := parseFilterFlags(opts.filters)
	if err != nil {
		return err
	}
	if opts.topK < 0 {
		return oerrors.ValidationError("--top-k must not be negative", nil)
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	p, err := openPipeline(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	resp, err := p.orchestrator.Search(ctx, search.Request{
		Query:   query,
		Filters: filters,
		TopK:    opts.topK,
	})
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.WriteJSON(cmd.OutOrStdout(), resp)
	}
	output.New(cmd.OutOrStdout()).SearchResults(resp)
	return nil
}

// parseFilterFlags turns repeated key=value flags into a filter map.
// Values stay strings; the pipeline coerces numbers like "$25,000".
func parseFilterFlags(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, oerrors.ValidationError(fmt.Sprintf("invalid filter %q", f), nil).
				WithSuggestion("Use --filter key=value, e.g. --filter max_price=30000")
		}
		filters[strings.ToLower(key)] = value
	}
	return filters, nil
}
