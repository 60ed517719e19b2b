package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/config"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/embed"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/expand"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/preflight"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/rerank"
)

// errDoctorFailed is returned when a required check fails.
var errDoctorFailed = errors.New("doctor found critical problems")

func newDoctorCmd(g *globalOptions) *cobra.Command {
	var verbose, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and collaborators",
		Long: `Check the data directory and probe the embedder, the query expansion
LLM and the cross-encoder server. Exits non-zero when a required check fails.

The embedder is required: seeding and semantic search need it. The LLM and
cross-encoder are optional; without them search degrades to the original
query and fusion order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			checker := preflight.New(cfg.Store.DataDir, append(doctorProbes(cfg),
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()))...)
			results := checker.RunAll(cmd.Context())

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return errDoctorFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

// doctorProbes builds a probe per configured collaborator.
func doctorProbes(cfg *config.Config) []preflight.Option {
	opts := []preflight.Option{
		preflight.WithProbe(preflight.Probe{
			Name:     "embedder",
			Required: true,
			Hint:     "Start Ollama and pull the model, or set embeddings.provider to static",
			Run: func(ctx context.Context) (string, error) {
				emb, err := embed.NewEmbedder(ctx, cfg.Embeddings)
				if err != nil {
					return "", err
				}
				defer func() { _ = emb.Close() }()
				if !emb.Available(ctx) {
					return "", fmt.Errorf("%s is not answering", emb.ModelName())
				}
				return fmt.Sprintf("%s (%d dims)", emb.ModelName(), emb.Dimensions()), nil
			},
		}),
	}

	switch strings.ToLower(cfg.Expansion.Provider) {
	case "ollama":
		opts = append(opts, preflight.WithProbe(preflight.Probe{
			Name: "expansion_llm",
			Hint: "Start Ollama, or set expansion.provider to none",
			Run: func(ctx context.Context) (string, error) {
				if !expand.NewOllamaLLM(cfg.Expansion.Host, cfg.Expansion.Model).Available(ctx) {
					return "", fmt.Errorf("ollama at %s is not answering", cfg.Expansion.Host)
				}
				return fmt.Sprintf("ollama %s", cfg.Expansion.Model), nil
			},
		}))
	case "openai":
		opts = append(opts, preflight.WithProbe(preflight.Probe{
			Name: "expansion_llm",
			Hint: "Check expansion.host and OTTO_OPENAI_API_KEY",
			Run: func(ctx context.Context) (string, error) {
				llm, err := expand.NewOpenAILLM(cfg.Expansion.Host, cfg.Expansion.Model, cfg.Expansion.APIKey)
				if err != nil {
					return "", err
				}
				raw, err := llm.Extract(ctx, expand.BuildPrompt("sedan"))
				if err != nil {
					return "", err
				}
				if _, err := expand.ParsePayload("sedan", raw); err != nil {
					return "", err
				}
				return fmt.Sprintf("openai-compatible %s", cfg.Expansion.Model), nil
			},
		}))
	}

	if strings.EqualFold(cfg.Rerank.Provider, "http") {
		opts = append(opts, preflight.WithProbe(preflight.Probe{
			Name: "cross_encoder",
			Hint: "Start the scoring server, or set rerank.provider to none",
			Run: func(ctx context.Context) (string, error) {
				scorer, err := rerank.NewHTTPScorer(ctx, rerank.HTTPScorerConfig{
					Endpoint:        cfg.Rerank.Endpoint,
					Model:           cfg.Rerank.Model,
					SkipHealthCheck: true,
				})
				if err != nil {
					return "", err
				}
				defer func() { _ = scorer.Close() }()
				if !scorer.Available(ctx) {
					return "", fmt.Errorf("%s is not answering", cfg.Rerank.Endpoint)
				}
				return cfg.Rerank.Model, nil
			},
		}))
	}
	return opts
}
