package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hunkim/solar-vector-store/internal/config"
	"github.com/hunkim/solar-vector-store/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display the configuration after merging defaults, the config file, .env and
environment variables. Secrets are masked.

Examples:
  # Show current configuration
  solar-vector-store config

  # Show config file paths
  solar-vector-store config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	if configShowPath {
		active := config.ConfigFilePath()
		if active == "" {
			active = "(none)"
		}
		fmt.Fprintln(out, ui.SectionTitle.Render("Configuration Paths"))
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.Field("Global", config.GlobalConfigPath()))
		fmt.Fprintln(out, ui.Field("Active", active))
		fmt.Fprintln(out, ui.Field("SQLite", cfg.VectorDB.SQLite.Path))
		return nil
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = out.Write(data)
	return err
}
