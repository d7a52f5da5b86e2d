// Package cli implements the command-line interface for solar-vector-store.
package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hunkim/solar-vector-store/internal/client"
	"github.com/hunkim/solar-vector-store/internal/config"
	"github.com/hunkim/solar-vector-store/internal/ui"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	debug     bool
	serverURL string
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "solar-vector-store",
	Short: "Document vector store backed by Upstage parsing and embeddings",
	Long: `solar-vector-store runs an HTTP service that turns uploaded documents into
per-page embeddings and answers similarity queries over them, and talks to
that service from the command line.

Examples:
  # Run the service
  solar-vector-store serve

  # Create a store and upload a directory of PDFs
  solar-vector-store store create manuals --dimension 4096
  solar-vector-store upload <store-id> ./manuals

  # Ask a question
  solar-vector-store query <store-id> "how do I reset the device"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetDebug(debug)
		if debug {
			log.Debug("Debug logging enabled")
		}

		if err := config.Load(cfgFile); err != nil {
			log.Warn("Failed to load config", "error", err)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	ui.InitLogger()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/solar-vector-store/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "server URL (default from client.url)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "solar-vector-store %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

// newClient returns an API client for the --url flag or the configured URL.
func newClient() (*client.Client, error) {
	cfg := config.Get()
	url := serverURL
	if url == "" {
		url = cfg.Client.URL
	}
	return client.New(url, cfg.Timeout())
}
