package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/hunkim/solar-vector-store/internal/registry"
	"github.com/hunkim/solar-vector-store/internal/ui"
	"github.com/hunkim/solar-vector-store/internal/vectordb"
)

var (
	storeDimension int
	storeDistance  string
	storeName      string
	storeNewMetric string
	storeJSON      bool
)

// storeCmd groups the store management commands.
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage vector stores",
	Long: `Create, inspect, update and delete vector stores on the server.

Examples:
  solar-vector-store store create manuals --dimension 4096 --distance Cosine
  solar-vector-store store list
  solar-vector-store store update <store-id> --distance Dot
  solar-vector-store store delete <store-id>`,
}

var storeCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a vector store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		id, err := c.CreateStore(cmd.Context(), args[0], storeDimension, vectordb.Distance(storeDistance))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vector stores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		stores, err := c.ListStores(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if storeJSON {
			return writeJSON(out, stores)
		}
		if len(stores) == 0 {
			fmt.Fprintln(out, ui.Dim.Render("No vector stores."))
			return nil
		}
		for _, s := range stores {
			fmt.Fprintf(out, "%s  %s  %s\n",
				ui.ID.Render(s.ID),
				ui.Bold.Render(s.Name),
				ui.Dim.Render(fmt.Sprintf("%d/%s", s.Dimension, s.Distance)))
		}
		return nil
	},
}

var storeGetCmd = &cobra.Command{
	Use:   "get <store-id>",
	Short: "Show a vector store and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.GetStore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if storeJSON {
			return writeJSON(cmd.OutOrStdout(), st)
		}
		printStore(cmd.OutOrStdout(), st)
		return nil
	},
}

var storeUpdateCmd = &cobra.Command{
	Use:   "update <store-id>",
	Short: "Rename a store or change its distance metric",
	Long: `Update a store's name and/or distance metric. Changing the metric recreates
the backing collection and removes every uploaded file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name *string
		var distance *vectordb.Distance
		if cmd.Flags().Changed("name") {
			name = &storeName
		}
		if cmd.Flags().Changed("distance") {
			d := vectordb.Distance(storeNewMetric)
			distance = &d
		}
		if name == nil && distance == nil {
			return fmt.Errorf("nothing to update: pass --name or --distance")
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.UpdateStore(cmd.Context(), args[0], name, distance)
		if err != nil {
			return err
		}
		printStore(cmd.OutOrStdout(), st)
		return nil
	},
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <store-id>",
	Short: "Delete a vector store and its collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.DeleteStore(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render("Deleted "+args[0]))
		return nil
	},
}

func init() {
	storeCreateCmd.Flags().IntVar(&storeDimension, "dimension", 4096, "embedding dimension")
	storeCreateCmd.Flags().StringVar(&storeDistance, "distance", string(vectordb.Cosine), "distance metric (Cosine, Euclid, Dot, Manhattan)")

	storeUpdateCmd.Flags().StringVar(&storeName, "name", "", "new store name")
	storeUpdateCmd.Flags().StringVar(&storeNewMetric, "distance", "", "new distance metric")

	storeListCmd.Flags().BoolVar(&storeJSON, "json", false, "output as JSON")
	storeGetCmd.Flags().BoolVar(&storeJSON, "json", false, "output as JSON")

	storeCmd.AddCommand(storeCreateCmd, storeListCmd, storeGetCmd, storeUpdateCmd, storeDeleteCmd)
}

func printStore(out io.Writer, st *registry.VectorStore) {
	fmt.Fprintln(out, ui.Header.Render(st.Name))
	fmt.Fprintln(out, ui.HorizontalRule(40))
	fmt.Fprintln(out, ui.Field("ID", st.ID))
	fmt.Fprintln(out, ui.Field("Collection", st.Collection))
	fmt.Fprintln(out, ui.Field("Dimension", st.Dimension))
	fmt.Fprintln(out, ui.Field("Distance", st.Distance))
	fmt.Fprintln(out, ui.Field("Created", st.CreatedAt.Format(time.RFC3339)))
	fmt.Fprintln(out, ui.Field("Files", len(st.Files)))
	printFiles(out, st.Files)
}

// printFiles lists file records oldest first.
func printFiles(out io.Writer, files map[string]registry.FileRecord) {
	recs := make([]registry.FileRecord, 0, len(files))
	for _, rec := range files {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})

	for _, rec := range recs {
		fmt.Fprintf(out, "  %s  %s  %s\n",
			ui.ID.Render(rec.ID),
			ui.FilePath.Render(rec.Filename),
			ui.Dim.Render(fmt.Sprintf("%d pages", rec.Pages)))
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
