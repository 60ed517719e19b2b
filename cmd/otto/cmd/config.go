package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JB5579/Otto-Match-V2-sub001/configs"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/config"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/output"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage otto configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/otto/config.yaml)
  3. Project config (.otto.yaml in --config-dir)
  4. Environment variables (OTTO_*)`,
		Example: `  # Create user config with defaults
  otto config init

  # Show effective configuration
  otto config show`,
	}

	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd(g *globalOptions) *cobra.Command {
	var force, project, defaults bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented configuration template",
		Long: `Write the user configuration template, or with --project a .otto.yaml
in --config-dir. --force overwrites an existing file after backing it up.
--defaults writes every resolved default instead of the commented template.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetUserConfigPath()
			template := configs.UserConfigTemplate
			if project {
				dir := g.configDir
				if dir == "" {
					wd, err := os.Getwd()
					if err != nil {
						return err
					}
					dir = wd
				}
				path = filepath.Join(dir, config.ProjectConfigName)
				template = configs.ProjectConfigTemplate
			}

			out := output.New(cmd.OutOrStdout())
			if _, err := os.Stat(path); err == nil {
				if !force {
					out.Warningf("Config already exists: %s", path)
					out.Status("", "Use --force to overwrite")
					return nil
				}
				backup, err := config.BackupFile(path)
				if err != nil {
					return err
				}
				out.Statusf("", "Backed up to %s", backup)
			}

			if defaults {
				if err := config.NewConfig().WriteYAML(path); err != nil {
					return err
				}
			} else {
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("failed to create config directory: %w", err)
				}
				if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
					return fmt.Errorf("failed to write config file: %w", err)
				}
			}
			out.Successf("Created %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file, keeping a backup")
	cmd.Flags().BoolVar(&project, "project", false, "Write .otto.yaml in --config-dir instead of the user config")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write resolved defaults instead of the commented template")

	return cmd
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
