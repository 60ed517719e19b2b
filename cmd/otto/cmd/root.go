// Package cmd provides the CLI commands for otto.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/config"
	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/logging"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/output"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/profiling"
	"github.com/JB5579/Otto-Match-V2-sub001/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	debug     bool
	configDir string
	profile   profiling.Config

	session        *profiling.Session
	loggingCleanup func()
}

// loadConfig loads configuration for --config-dir, or the working
// directory when the flag is unset.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	dir := g.configDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	return config.Load(dir)
}

// NewRootCmd creates the root command for the otto CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "otto",
		Short: "Natural-language vehicle search",
		Long: `Otto finds vehicles from a natural-language request.

A query is expanded by an LLM, searched three ways (semantic, keyword and
structured filters), fused with weighted reciprocal rank fusion and
re-ranked by a cross-encoder. Every stage degrades instead of failing.

Load a catalog with 'otto seed', then query it with 'otto search' or
expose it to MCP clients with 'otto serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("otto version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.otto/logs/ and stderr")
	cmd.PersistentFlags().StringVar(&g.configDir, "config-dir", "", "Directory containing .otto.yaml (default: working directory)")
	cmd.PersistentFlags().StringVar(&g.profile.CPUPath, "cpuprofile", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.HeapPath, "memprofile", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&g.profile.TracePath, "trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error { return g.start() }
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error { return g.stop() }

	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newSeedCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newValidateCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start sets up logging and profiling. Logs go to the log file only, so
// stdout stays clean for results and for the MCP stdio transport.
func (g *globalOptions) start() error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if cfg, err := g.loadConfig(); err == nil {
		logCfg.Level = cfg.Server.LogLevel
	}
	if g.debug {
		logCfg = logging.DebugConfig()
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	g.loggingCleanup = cleanup
	if g.debug {
		slog.Debug("Debug logging enabled", slog.String("log_file", logCfg.FilePath))
	}

	if g.profile.Enabled() {
		s, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.session = s
	}
	return nil
}

// stop flushes profiles and closes the log file.
func (g *globalOptions) stop() error {
	err := g.session.Stop()
	g.session = nil

	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
	return err
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// formatError renders coded errors with their suggestion.
func formatError(err error) string {
	var oe *oerrors.OttoError
	if errors.As(err, &oe) {
		return strings.TrimRight(oerrors.FormatForCLI(err), "\n")
	}
	return err.Error()
}

// Execute runs the root command, printing any error to stderr.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		output.New(os.Stderr).Error(formatError(err))
		return err
	}
	return nil
}
