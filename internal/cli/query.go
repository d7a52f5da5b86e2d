package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hunkim/solar-vector-store/internal/search"
	"github.com/hunkim/solar-vector-store/internal/ui"
)

var (
	queryTopK int
	queryJSON bool
)

// queryCmd runs a similarity search against a store.
var queryCmd = &cobra.Command{
	Use:   "query <store-id> <text>",
	Short: "Search a store with natural language",
	Long: `Embed the query text and return the closest pages of the store.

Examples:
  solar-vector-store query <store-id> "warranty period"
  solar-vector-store query <store-id> "warranty period" -k 3 --json`,
	Args: cobra.MinimumNArgs(2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", search.DefaultTopK, "maximum number of results")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	text := strings.Join(args[1:], " ")
	hits, err := c.Query(cmd.Context(), args[0], text, queryTopK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		return writeJSON(out, hits)
	}
	if len(hits) == 0 {
		fmt.Fprintln(out, ui.Dim.Render("No results."))
		return nil
	}

	for i, h := range hits {
		fmt.Fprintf(out, "%2d. %s  %s\n", i+1, ui.FormatHit(h.Payload.File, h.Payload.Page), ui.FormatScore(h.Score))
	}
	return nil
}
