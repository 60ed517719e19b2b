package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/embed"
	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/seed"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/store"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/ui"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

type seedOptions struct {
	workers   int
	batchSize int
	reset     bool
	plain     bool
	noColor   bool
}

func newSeedCmd(g *globalOptions) *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed <catalog.json>",
		Short: "Load a vehicle catalog into the local indexes",
		Long: `Load a JSON array of vehicle records into the catalog, keyword and
vector indexes. Records are embedded on a worker pool; nothing is written
unless every record embeds.

Re-seeding replaces records with the same id. Use --reset after changing
the embeddings provider or model.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, g, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Embedding workers (default from config)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", seed.DefaultBatchSize, "Records per embedding call")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "Remove existing indexes before seeding")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")

	return cmd
}

func runSeed(cmd *cobra.Command, g *globalOptions, path string, opts seedOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return oerrors.New(oerrors.ErrCodeCatalogInvalid, "failed to open catalog", err).
			WithDetail("path", path)
	}
	records, err := vehicle.LoadCatalog(f)
	_ = f.Close()
	if err != nil {
		return oerrors.New(oerrors.ErrCodeCatalogInvalid, err.Error(), err).
			WithDetail("path", path)
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	dataDir := cfg.Store.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return oerrors.StorageError("failed to create data directory", err)
	}

	lock := store.NewDataLock(dataDir)
	if opts.reset {
		// Reset under the lock so a running seed is never clobbered.
		ok, err := lock.TryLock()
		if err != nil {
			return oerrors.StorageError("failed to lock data directory", err)
		}
		if !ok {
			return oerrors.New(oerrors.ErrCodeStoreLocked, "data directory is locked by another process", nil)
		}
		err = store.Reset(dataDir)
		_ = lock.Unlock()
		if err != nil {
			return oerrors.StorageError("failed to reset indexes", err)
		}
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	catalog, err := store.NewSQLiteCatalog(store.CatalogPath(dataDir))
	if err != nil {
		return err
	}
	defer func() { _ = catalog.Close() }()

	keyword, err := store.NewKeywordIndex(dataDir, cfg.Store.KeywordBackend)
	if err != nil {
		return err
	}
	defer func() { _ = keyword.Close() }()

	vectorPath := store.VectorPath(dataDir)
	vectors, err := store.OpenHNSWVectorStore(vectorPath, store.VectorStoreConfig{Dimensions: embedder.Dimensions()})
	if err != nil {
		var dim *store.DimensionMismatchError
		if errors.As(err, &dim) {
			return oerrors.New(oerrors.ErrCodeDimensionMismatch, err.Error(), err).
				WithSuggestion("Re-seed with --reset after changing the embeddings model")
		}
		return err
	}
	defer func() { _ = vectors.Close() }()

	workers := opts.workers
	if workers <= 0 {
		workers = cfg.Seed.Workers
	}
	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: opts.plain,
		NoColor:    opts.noColor,
	})

	seeder, err := seed.New(embedder, seed.Stores{
		Catalog:    catalog,
		Keyword:    keyword,
		Vectors:    vectors,
		VectorPath: vectorPath,
	},
		seed.WithWorkers(workers),
		seed.WithBatchSize(opts.batchSize),
		seed.WithRenderer(renderer),
		seed.WithLock(lock),
		seed.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}

	result, err := seeder.Seed(ctx, records)
	if err != nil {
		return err
	}
	slog.Info("seed_command_completed",
		slog.String("catalog", path),
		slog.Int("vehicles", result.Vehicles),
		slog.String("data_dir", dataDir))
	return nil
}
