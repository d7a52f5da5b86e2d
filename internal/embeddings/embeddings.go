// Package embeddings provides text embedding services for pages and queries.
package embeddings

import (
	"context"
	"fmt"

	"github.com/hunkim/solar-vector-store/internal/config"
)

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderUpstage Provider = "upstage"
	ProviderOllama  Provider = "ollama"
)

// Mode selects between the passage and query variants of a model.
type Mode string

const (
	ModePassage Mode = "passage"
	ModeQuery   Mode = "query"
)

// Service defines the interface for embedding services.
// Failures are reported as errs.ErrTransport or errs.ErrUpstream; callers
// decide which stage they belong to.
type Service interface {
	// Embed generates a passage embedding for a page of a document.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates a query embedding for search text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model used for the given mode.
	ModelName(mode Mode) string
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Upstage models
	"solar-embedding-1-large-passage": 4096,
	"solar-embedding-1-large-query":   4096,
	"embedding-passage":               4096,
	"embedding-query":                 4096,

	// Ollama models
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewService creates an embedding service based on the configuration.
func NewService(cfg *config.Config) (Service, error) {
	switch cfg.Embeddings.Provider {
	case "upstage", "":
		return NewUpstageService(UpstageOptions{
			APIKey:       cfg.Upstage.APIKey,
			EmbedURL:     cfg.Upstage.EmbedURL,
			PassageModel: cfg.Embeddings.Upstage.PassageModel,
			QueryModel:   cfg.Embeddings.Upstage.QueryModel,
			Timeout:      cfg.Timeout(),
		})
	case "ollama":
		return NewOllamaService(
			cfg.Embeddings.Ollama.URL,
			cfg.Embeddings.Ollama.PassageModel,
			cfg.Embeddings.Ollama.QueryModel,
			cfg.Timeout(),
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embeddings.Provider)
	}
}
