package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hunkim/solar-vector-store/internal/ui"
)

var filesJSON bool

// filesCmd lists the files uploaded to a store.
var filesCmd = &cobra.Command{
	Use:   "files <store-id>",
	Short: "List the files uploaded to a store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		files, err := c.ListFiles(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if filesJSON {
			return writeJSON(out, files)
		}
		if len(files) == 0 {
			fmt.Fprintln(out, ui.Dim.Render("No files."))
			return nil
		}
		printFiles(out, files)
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <store-id> <file-id>",
	Short: "Delete a file and its vectors",
	Long: `Delete a file record and its vectors. Vectors are matched by filename, so
every record of the store sharing the filename loses its vectors too.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.DeleteFile(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render("Deleted "+args[1]))
		return nil
	},
}

func init() {
	filesCmd.Flags().BoolVar(&filesJSON, "json", false, "output as JSON")
	filesCmd.AddCommand(filesDeleteCmd)
}
