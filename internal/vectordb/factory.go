package vectordb

import (
	"context"
	"fmt"

	"github.com/hunkim/solar-vector-store/internal/config"
)

// New creates the vector database client selected by the configuration.
func New(ctx context.Context, cfg *config.Config) (Index, error) {
	switch cfg.VectorDB.Backend {
	case "qdrant", "":
		return NewQdrantIndex(QdrantConfig{
			URL:     cfg.VectorDB.Qdrant.URL,
			APIKey:  cfg.VectorDB.Qdrant.APIKey,
			Timeout: cfg.Timeout(),
		})
	case "sqlite":
		return NewSQLiteIndex(cfg.VectorDB.SQLite.Path)
	case "pgvector":
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
		defer cancel()
		return NewPgVectorIndex(ctx, cfg.VectorDB.PGVector.DSN)
	case "memory":
		return NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.VectorDB.Backend)
	}
}
