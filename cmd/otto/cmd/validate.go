package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/output"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/validation"
)

// errValidationFailed is returned when a Tier 1 or negative query fails.
var errValidationFailed = errors.New("validation failed")

func newValidateCmd(g *globalOptions) *cobra.Command {
	var (
		topK       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "validate <queries.yaml>",
		Short: "Run golden relevance queries against the seeded catalog",
		Long: `Run the queries in a YAML file through the search_vehicles tool and
check that each one returns an expected vehicle.

Tier 1 queries and negative queries must all pass. Tier 2 queries are
reported but do not fail the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := validation.LoadQueries(args[0])
			if err != nil {
				return err
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

			v, err := validation.NewValidator(ctx, p.orchestrator, validation.WithTopK(topK))
			if err != nil {
				return err
			}
			defer func() { _ = v.Close() }()

			result := v.RunAll(ctx, queries)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printValidation(output.New(cmd.OutOrStdout()), result)
			}

			if !result.Passed() {
				return errValidationFailed
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", validation.DefaultTopK, "Results each query may search")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func printValidation(w *output.Writer, r *validation.ValidationResult) {
	w.Header("Validation")
	w.Newline()

	tiers := []struct {
		name    string
		results []validation.TestResult
		summary validation.TierSummary
	}{
		{"tier 1", r.Tier1, r.Tier1Summary},
		{"tier 2", r.Tier2, r.Tier2Summary},
		{"negative", r.Negative, r.NegativeSummary},
	}
	for _, tier := range tiers {
		for _, tr := range tier.results {
			line := fmt.Sprintf("%s %s (%s)", tr.Spec.ID, tr.Spec.Name, tr.Duration.Round(100*time.Microsecond))
			switch {
			case tr.Passed:
				w.Success(line)
			case tr.Spec.Tier == 2:
				w.Warning(line)
			default:
				w.Error(line)
			}
			if !tr.Passed {
				if tr.Error != "" {
					w.Status("", tr.Error)
				} else {
					w.Statusf("", "expected %s, got %s",
						strings.Join(tr.Spec.Expected, ", "), strings.Join(tr.TopResults, ", "))
				}
			}
		}
	}

	w.Newline()
	for _, tier := range tiers {
		w.KeyValue(tier.name, fmt.Sprintf("%d/%d (%.0f%%)", tier.summary.Pass, tier.summary.Total, tier.summary.Rate()))
	}
}
