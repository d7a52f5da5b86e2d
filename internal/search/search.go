// Package search answers similarity queries against a vector store.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hunkim/solar-vector-store/internal/embeddings"
	"github.com/hunkim/solar-vector-store/internal/errs"
	"github.com/hunkim/solar-vector-store/internal/metrics"
	"github.com/hunkim/solar-vector-store/internal/registry"
	"github.com/hunkim/solar-vector-store/internal/vectordb"
)

// DefaultTopK is the number of hits returned when the caller does not say.
const DefaultTopK = 10

// Searcher provides semantic search over registered stores.
type Searcher struct {
	registry *registry.Registry
	index    vectordb.Index
	embedder embeddings.Service
	metrics  *metrics.Metrics
}

// New creates a new Searcher. m may be nil.
func New(reg *registry.Registry, index vectordb.Index, emb embeddings.Service, m *metrics.Metrics) *Searcher {
	return &Searcher{
		registry: reg,
		index:    index,
		embedder: emb,
		metrics:  m,
	}
}

// Search embeds text in query mode and returns the topK nearest points of
// the store's collection, best first.
func (s *Searcher) Search(ctx context.Context, storeID, text string, topK int) ([]vectordb.Hit, error) {
	const op = "search"

	store, err := s.registry.Get(storeID)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, errs.E(op, errs.ErrValidation, errors.New("query cannot be empty"))
	}
	if topK <= 0 {
		return nil, errs.E(op, errs.ErrValidation, fmt.Errorf("top_k must be positive, got %d", topK))
	}

	log.Debug("Generating query embedding", "store", storeID, "query", truncate(text, 50))
	start := time.Now()
	vec, err := s.embedder.EmbedQuery(ctx, text)
	s.metrics.ObserveExternal("embedder", start, err)
	if err != nil {
		return nil, errs.E(op, errs.ErrEmbedding, fmt.Errorf("failed to embed query: %w", err))
	}
	if len(vec) != store.Dimension {
		return nil, errs.E(op, errs.ErrEmbedding,
			fmt.Errorf("query embedding has %d dimensions, store expects %d", len(vec), store.Dimension))
	}

	log.Debug("Searching store", "store", storeID, "collection", store.Collection, "topK", topK)
	start = time.Now()
	hits, err := s.index.Search(ctx, store.Collection, vec, topK)
	s.metrics.ObserveExternal("vectordb", start, err)
	if err != nil {
		return nil, errs.E(op, errs.ErrBackingStore, err)
	}

	log.Debug("Search complete", "store", storeID, "results", len(hits))
	if hits == nil {
		hits = []vectordb.Hit{}
	}
	return hits, nil
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
