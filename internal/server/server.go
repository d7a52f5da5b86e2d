// Package server exposes vector stores over HTTP.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/hunkim/solar-vector-store/internal/metrics"
	"github.com/hunkim/solar-vector-store/internal/registry"
	"github.com/hunkim/solar-vector-store/internal/vectordb"
)

// APIReference is the markdown reference of the HTTP API.
//
//go:embed api.md
var APIReference string

// DefaultMaxUploadBytes caps the size of an upload request body.
const DefaultMaxUploadBytes = 50 << 20

// Ingester stores an uploaded document in a vector store.
type Ingester interface {
	Ingest(ctx context.Context, storeID, filename string, content []byte) (registry.FileRecord, error)
}

// Searcher runs a similarity query against a vector store.
type Searcher interface {
	Search(ctx context.Context, storeID, text string, topK int) ([]vectordb.Hit, error)
}

// Dependencies holds the components the handlers call.
type Dependencies struct {
	Registry *registry.Registry
	Ingester Ingester
	Searcher Searcher
	Metrics  *metrics.Metrics
}

// Options configures the HTTP layer.
type Options struct {
	// Mode is the gin mode: release, debug or test.
	Mode string

	// MaxUploadBytes caps upload request bodies. Zero means the default.
	MaxUploadBytes int64

	// Version is reported by the health endpoint.
	Version string
}

// Server is the HTTP API of the vector store service.
type Server struct {
	router   *gin.Engine
	registry *registry.Registry
	ingester Ingester
	searcher Searcher
	metrics  *metrics.Metrics

	maxUpload int64
	version   string
}

// New creates a server with its middleware and routes installed.
func New(deps Dependencies, opts Options) (*Server, error) {
	if deps.Registry == nil || deps.Ingester == nil || deps.Searcher == nil {
		return nil, fmt.Errorf("registry, ingester and searcher are required")
	}

	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		router:    gin.New(),
		registry:  deps.Registry,
		ingester:  deps.Ingester,
		searcher:  deps.Searcher,
		metrics:   deps.Metrics,
		maxUpload: opts.MaxUploadBytes,
		version:   opts.Version,
	}
	s.metrics.RegisterStoreGauge(s.registry.Len)

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(recoveryHandler))
	s.router.Use(requestIDMiddleware())
	s.router.Use(accessLogMiddleware())
	s.router.Use(s.metrics.Middleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	stores := s.router.Group("/vector_stores")
	{
		stores.POST("", s.createStore)
		stores.GET("", s.listStores)
		stores.GET("/:id", s.getStore)
		stores.PATCH("/:id", s.updateStore)
		stores.DELETE("/:id", s.deleteStore)

		stores.POST("/:id/files", s.uploadFile)
		stores.GET("/:id/files", s.listFiles)
		stores.GET("/:id/files/:fid", s.getFile)
		stores.DELETE("/:id/files/:fid", s.deleteFile)

		stores.POST("/:id/query", s.query)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully,
// waiting at most shutdownTimeout for in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", addr, "version", s.version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("Server stopped")
	return nil
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
		"stores":  s.registry.Len(),
	})
}
