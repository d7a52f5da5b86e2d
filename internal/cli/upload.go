package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hunkim/solar-vector-store/internal/client"
	"github.com/hunkim/solar-vector-store/internal/config"
	"github.com/hunkim/solar-vector-store/internal/fs"
	"github.com/hunkim/solar-vector-store/internal/ui"
	"github.com/hunkim/solar-vector-store/internal/watcher"
)

var (
	uploadWatch       bool
	uploadExtensions  []string
	uploadIgnore      []string
	uploadHidden      bool
	uploadNoGitignore bool
)

// uploadCmd uploads a document or a directory of documents.
var uploadCmd = &cobra.Command{
	Use:   "upload <store-id> <path>",
	Short: "Upload a document or a directory of documents",
	Long: `Upload one file, or every supported document below a directory, to a store.

Directory uploads honour .gitignore, the configured ignore patterns and the
extension list. With --watch the command keeps running and uploads files
again when they change; a changed file replaces its previous upload.

Examples:
  # Upload a single PDF
  solar-vector-store upload <store-id> ./manual.pdf

  # Upload a tree of scans and keep it in sync
  solar-vector-store upload <store-id> ./scans --ext .png --ext .jpg --watch`,
	Args: cobra.ExactArgs(2),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVarP(&uploadWatch, "watch", "w", false, "keep watching the directory for changes")
	uploadCmd.Flags().StringSliceVarP(&uploadExtensions, "ext", "e", nil, "file extensions to include (default from upload.extensions)")
	uploadCmd.Flags().StringSliceVarP(&uploadIgnore, "ignore", "i", nil, "additional patterns to ignore")
	uploadCmd.Flags().BoolVar(&uploadHidden, "hidden", false, "include hidden files and directories")
	uploadCmd.Flags().BoolVar(&uploadNoGitignore, "no-gitignore", false, "do not read .gitignore")
}

func runUpload(cmd *cobra.Command, args []string) error {
	storeID, path := args[0], args[1]
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newClient()
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	if !info.IsDir() {
		if uploadWatch {
			return fmt.Errorf("--watch needs a directory")
		}
		fi, err := fs.StatFile(path)
		if err != nil {
			return err
		}
		_, err = uploadFile(ctx, c, storeID, fi, out)
		return err
	}

	walker, err := fs.NewFileWalker(walkOptions(path))
	if err != nil {
		return err
	}

	uploaded := make(map[string]watcher.Upload)
	failed := 0
	err = walker.Walk(func(fi fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := uploadFile(ctx, c, storeID, fi, out)
		if err != nil {
			failed++
			return nil
		}
		uploaded[fi.Path] = watcher.Upload{FileID: res.FileID, Hash: fi.Hash}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to walk %s: %w", path, err)
	}

	stats := walker.Stats()
	fmt.Fprintln(out, ui.Dim.Render(fmt.Sprintf("Uploaded %d of %d files, %d skipped",
		len(uploaded), stats.FilesFound, stats.FilesSkipped)))

	if !uploadWatch {
		if failed > 0 {
			return fmt.Errorf("%d uploads failed", failed)
		}
		return nil
	}

	w := watcher.New(walker, storeID, c, watcher.WithEventCallback(func(event, relPath string) {
		fmt.Fprintf(out, "%s %s\n", ui.Warning.Render(event), ui.FilePath.Render(relPath))
	}))
	for p, u := range uploaded {
		w.Track(p, u)
	}

	fmt.Fprintln(out, ui.Header.Render("Watching for changes"))
	fmt.Fprintln(out, ui.Dim.Render("Press Ctrl+C to stop."))

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// walkOptions merges the upload config with the command flags.
func walkOptions(root string) fs.WalkOptions {
	cfg := config.Get()

	opts := fs.DefaultWalkOptions()
	opts.Root = root
	opts.MaxFileSize = cfg.Upload.MaxFileSize
	opts.MaxFileCount = cfg.Upload.MaxFileCount
	opts.Extensions = cfg.Upload.Extensions
	opts.IgnorePatterns = append(append([]string{}, cfg.Upload.Ignore...), uploadIgnore...)
	opts.IncludeHidden = uploadHidden
	opts.UseGitignore = !uploadNoGitignore
	if len(uploadExtensions) > 0 {
		opts.Extensions = uploadExtensions
	}
	return opts
}

func uploadFile(ctx context.Context, c *client.Client, storeID string, fi fs.FileInfo, out io.Writer) (*client.UploadResult, error) {
	f, err := os.Open(fi.Path)
	if err != nil {
		log.Error("Failed to open file", "path", fi.RelPath, "error", err)
		return nil, err
	}
	defer f.Close()

	res, err := c.Upload(ctx, storeID, fi.RelPath, f)
	if err != nil {
		fmt.Fprintf(out, "%s %s: %v\n", ui.Error.Render("✗"), ui.FilePath.Render(fi.RelPath), err)
		return nil, err
	}

	fmt.Fprintf(out, "%s %s %s\n",
		ui.Success.Render("✓"),
		ui.FilePath.Render(fi.RelPath),
		ui.Dim.Render(fmt.Sprintf("%s, %d pages", res.FileID, res.Pages)))
	return res, nil
}
