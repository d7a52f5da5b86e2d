// Package vectordb provides the vector database clients used to hold one
// collection of page embeddings per vector store.
package vectordb

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hunkim/solar-vector-store/internal/errs"
)

// Distance is the similarity metric of a collection. Values use Qdrant's
// spelling, which is also what the HTTP API accepts.
type Distance string

const (
	Cosine    Distance = "Cosine"
	Euclid    Distance = "Euclid"
	Dot       Distance = "Dot"
	Manhattan Distance = "Manhattan"
)

// Distances lists every supported metric.
var Distances = []Distance{Cosine, Euclid, Dot, Manhattan}

// ParseDistance resolves a metric name case-insensitively.
func ParseDistance(s string) (Distance, error) {
	for _, d := range Distances {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	return "", errs.E("parse distance", errs.ErrValidation, fmt.Errorf("unknown distance %q", s))
}

// HigherIsBetter reports whether larger scores mean closer vectors.
func (d Distance) HigherIsBetter() bool {
	return d == Cosine || d == Dot
}

// Payload field names.
const (
	FieldFile = "file"
	FieldPage = "page"
)

// Payload is the metadata stored with every point.
type Payload struct {
	File string `json:"file"`
	Page int    `json:"page"`
}

// Point is one embedded page.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// Hit is a search result.
type Hit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Index is a vector database holding named collections of points.
// Implementations report failures as errs.ErrBackingStore and never retry.
type Index interface {
	// CreateCollection creates a collection, dropping any existing one with
	// the same name first.
	CreateCollection(ctx context.Context, name string, dimension int, distance Distance) error

	// CreateIndex creates a keyword payload index on field.
	CreateIndex(ctx context.Context, collection, field string) error

	// Upsert inserts or replaces points by ID.
	Upsert(ctx context.Context, collection string, points []Point) error

	// DeleteByFilter removes every point whose payload field equals value.
	DeleteByFilter(ctx context.Context, collection, field, value string) error

	// DeleteCollection drops a collection. Dropping a missing collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// Search returns up to limit nearest points, best first.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error)

	// Backend returns the backend name.
	Backend() string

	// Close releases resources.
	Close() error
}

var collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,63}$`)

// ValidateCollectionName rejects names that cannot be used as table names.
func ValidateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

func backingErr(op string, err error) error {
	return errs.E(op, errs.ErrBackingStore, err)
}
