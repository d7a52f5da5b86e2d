// Package ingest turns an uploaded document into stored page vectors.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hunkim/solar-vector-store/internal/embeddings"
	"github.com/hunkim/solar-vector-store/internal/errs"
	"github.com/hunkim/solar-vector-store/internal/fs"
	"github.com/hunkim/solar-vector-store/internal/metrics"
	"github.com/hunkim/solar-vector-store/internal/parser"
	"github.com/hunkim/solar-vector-store/internal/registry"
	"github.com/hunkim/solar-vector-store/internal/vectordb"
)

// DefaultConcurrency is the number of pages embedded at once.
const DefaultConcurrency = 4

// Options configures a Pipeline.
type Options struct {
	Concurrency int
	Metrics     *metrics.Metrics
}

// Pipeline parses a document, embeds each page and commits the result to the
// registry.
type Pipeline struct {
	registry *registry.Registry
	parser   parser.Client
	embedder embeddings.Service
	metrics  *metrics.Metrics

	concurrency int
	newPointID  func() string
}

// New creates a pipeline.
func New(reg *registry.Registry, p parser.Client, e embeddings.Service, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Pipeline{
		registry:    reg,
		parser:      p,
		embedder:    e,
		metrics:     opts.Metrics,
		concurrency: opts.Concurrency,
		newPointID:  uuid.NewString,
	}
}

// Ingest stores one upload in a vector store and returns its file record.
//
// Pages whose embedding fails are skipped, so the returned record may count
// fewer pages than the parser produced. The call fails only if no page
// could be embedded, or if parsing or the upsert fails; in that case nothing
// is recorded.
func (p *Pipeline) Ingest(ctx context.Context, storeID, filename string, content []byte) (rec registry.FileRecord, err error) {
	const op = "ingest"

	defer func() { p.metrics.ObserveIngestion(result(err)) }()

	store, err := p.registry.Get(storeID)
	if err != nil {
		return registry.FileRecord{}, err
	}
	if filename == "" {
		return registry.FileRecord{}, errs.E(op, errs.ErrValidation, errors.New("missing filename"))
	}
	if len(content) == 0 {
		return registry.FileRecord{}, errs.E(op, errs.ErrValidation, errors.New("empty upload"))
	}

	start := time.Now()
	pages, err := p.parse(ctx, filename, content)
	if err != nil {
		return registry.FileRecord{}, err
	}
	parsed := time.Since(start)

	vectors := p.embedPages(ctx, store, filename, pages)

	points := make([]vectordb.Point, 0, len(pages))
	for i, vec := range vectors {
		if vec == nil {
			continue
		}
		points = append(points, vectordb.Point{
			ID:      p.newPointID(),
			Vector:  vec,
			Payload: vectordb.Payload{File: filename, Page: i},
		})
	}
	p.metrics.ObservePages(len(points), len(pages)-len(points))

	if len(points) == 0 {
		return registry.FileRecord{}, errs.E(op, errs.ErrEmbedding,
			fmt.Errorf("no embeddings generated for %d pages of %s", len(pages), filename))
	}

	rec, err = p.registry.AddFile(ctx, storeID, registry.FileRecord{
		Filename: filename,
		Hash:     fs.HashContent(content),
		Size:     int64(len(content)),
	}, points)
	if err != nil {
		return registry.FileRecord{}, err
	}

	log.Info("Ingested file",
		"store", storeID,
		"file", filename,
		"file_id", rec.ID,
		"pages", rec.Pages,
		"skipped", len(pages)-rec.Pages,
		"parse", parsed.Round(time.Millisecond),
		"total", time.Since(start).Round(time.Millisecond))
	return rec, nil
}

// parse sends the document to the parser and normalizes the answer into
// page texts.
func (p *Pipeline) parse(ctx context.Context, filename string, content []byte) ([]string, error) {
	const op = "parse document"

	start := time.Now()
	resp, err := p.parser.Parse(ctx, filename, content)
	p.metrics.ObserveExternal("parser", start, err)
	if err != nil {
		return nil, errs.E(op, errs.ErrParse, err)
	}

	pages := resp.Pages()
	if len(pages) == 0 {
		return nil, errs.E(op, errs.ErrParse, errors.New("invalid parse response structure: no pages extracted"))
	}
	log.Debug("Parsed document", "file", filename, "pages", len(pages), "elements", len(resp.Elements))
	return pages, nil
}

// embedPages embeds pages in passage mode with bounded concurrency. The
// result has one slot per page; a nil slot marks a skipped page.
func (p *Pipeline) embedPages(ctx context.Context, store registry.VectorStore, filename string, pages []string) [][]float32 {
	vectors := make([][]float32, len(pages))

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, text := range pages {
		g.Go(func() error {
			start := time.Now()
			vec, err := p.embedder.Embed(ctx, text)
			p.metrics.ObserveExternal("embedder", start, err)
			if err != nil {
				log.Warn("Embedding failed, skipping page", "file", filename, "page", i, "error", err)
				return nil
			}
			if len(vec) != store.Dimension {
				log.Warn("Embedding dimension mismatch, skipping page",
					"file", filename, "page", i, "got", len(vec), "want", store.Dimension)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	// Page failures are logged and absorbed, so Wait never reports one.
	g.Wait()

	return vectors
}

func result(err error) string {
	switch errs.Kind(err) {
	case nil:
		if err == nil {
			return "ok"
		}
		return "error"
	case errs.ErrNotFound:
		return "not_found"
	case errs.ErrValidation:
		return "invalid"
	case errs.ErrParse:
		return "parse_error"
	case errs.ErrEmbedding:
		return "embedding_error"
	case errs.ErrBackingStore:
		return "store_error"
	default:
		return "error"
	}
}
