package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hunkim/solar-vector-store/internal/server"
	"github.com/hunkim/solar-vector-store/internal/ui"
)

var apiRaw bool

// apiCmd prints the HTTP API reference.
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Show the HTTP API reference",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if apiRaw {
			_, err := fmt.Fprint(out, server.APIReference)
			return err
		}

		rendered, err := ui.RenderMarkdown(server.APIReference, 100)
		if err != nil {
			log.Debug("Failed to render markdown", "error", err)
			rendered = server.APIReference
		}
		_, err = fmt.Fprint(out, rendered)
		return err
	},
}

func init() {
	apiCmd.Flags().BoolVar(&apiRaw, "raw", false, "print markdown without rendering")
}
