package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hunkim/solar-vector-store/internal/config"
	"github.com/hunkim/solar-vector-store/internal/embeddings"
	"github.com/hunkim/solar-vector-store/internal/ingest"
	"github.com/hunkim/solar-vector-store/internal/metrics"
	"github.com/hunkim/solar-vector-store/internal/parser"
	"github.com/hunkim/solar-vector-store/internal/registry"
	"github.com/hunkim/solar-vector-store/internal/search"
	"github.com/hunkim/solar-vector-store/internal/server"
	"github.com/hunkim/solar-vector-store/internal/ui"
	"github.com/hunkim/solar-vector-store/internal/vectordb"
)

var (
	serveHost string
	servePort int
)

// serveCmd runs the HTTP service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vector store HTTP service",
	Long: `Start the HTTP service. Stores live in memory and are lost when the process
exits; their collections stay in the vector database.

Examples:
  # Serve on the configured address with Qdrant
  solar-vector-store serve

  # Use the embedded sqlite-vec backend on port 9000
  SVS_VECTORDB_BACKEND=sqlite solar-vector-store serve --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	if err := ui.SetFormat(cfg.Server.LogFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index, err := vectordb.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open vector database: %w", err)
	}
	defer index.Close()

	docParser, err := parser.NewUpstage(cfg.Upstage.ParseURL, cfg.Upstage.APIKey, cfg.Timeout())
	if err != nil {
		return fmt.Errorf("failed to create document parser: %w", err)
	}

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	m := metrics.New()
	reg := registry.New(index, registry.WithMetrics(m))

	srv, err := server.New(server.Dependencies{
		Registry: reg,
		Ingester: ingest.New(reg, docParser, emb, ingest.Options{
			Concurrency: cfg.Ingest.Concurrency,
			Metrics:     m,
		}),
		Searcher: search.New(reg, index, emb, m),
		Metrics:  m,
	}, server.Options{
		Mode:           cfg.Server.Mode,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Version:        version,
	})
	if err != nil {
		return err
	}

	log.Info("Starting vector store",
		"backend", index.Backend(),
		"embeddings", emb.Provider(),
		"passage_model", emb.ModelName(embeddings.ModePassage),
		"query_model", emb.ModelName(embeddings.ModeQuery),
	)

	return srv.Run(ctx, cfg.Addr(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
}
