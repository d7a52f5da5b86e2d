// Package registry keeps the set of vector stores known to the process.
//
// The registry lives in memory only. It starts empty, is never persisted and
// is lost on restart; the backing collections of stores created by an
// earlier process are left behind in the vector database.
package registry

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/hunkim/solar-vector-store/internal/errs"
	"github.com/hunkim/solar-vector-store/internal/metrics"
	"github.com/hunkim/solar-vector-store/internal/vectordb"
)

// CollectionPrefix prefixes the backing collection name of every store.
const CollectionPrefix = "vs_"

// VectorStore is a snapshot of a store's metadata.
type VectorStore struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Collection string                `json:"collection"`
	Dimension  int                   `json:"dimension"`
	Distance   vectordb.Distance     `json:"distance"`
	Files      map[string]FileRecord `json:"files"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Summary is the list view of a store.
type Summary struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Dimension int               `json:"dimension"`
	Distance  vectordb.Distance `json:"distance"`
}

// FileRecord describes one ingested upload. Pages counts the points stored
// for it, which may be fewer than the pages parsed.
type FileRecord struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Pages     int       `json:"pages"`
	Hash      string    `json:"hash,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type entry struct {
	mu      sync.RWMutex
	deleted bool
	// dropped is set when the collection was dropped for a metric change
	// but could not be recreated; the next metric update recreates it.
	dropped bool
	store   VectorStore
}

// Registry maps store IDs to stores. Mutations of one store are serialized
// by that store's lock; the map lock only guards adding and removing stores.
type Registry struct {
	index   vectordb.Index
	metrics *metrics.Metrics

	mu     sync.RWMutex
	stores map[string]*entry

	now   func() time.Time
	newID func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records the latency of every vector database call.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates an empty registry backed by index.
func New(index vectordb.Index, opts ...Option) *Registry {
	r := &Registry{
		index:  index,
		stores: make(map[string]*entry),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// observe runs one vector database call and records its latency.
func (r *Registry) observe(fn func() error) error {
	start := time.Now()
	err := fn()
	r.metrics.ObserveExternal("vectordb", start, err)
	return err
}

// Create allocates a store, creates its collection and the keyword index on
// the file field, then registers it. Nothing is registered on failure.
func (r *Registry) Create(ctx context.Context, name string, dimension int, distance vectordb.Distance) (VectorStore, error) {
	const op = "create store"

	name = strings.TrimSpace(name)
	if name == "" {
		return VectorStore{}, errs.E(op, errs.ErrValidation, fmt.Errorf("name is required"))
	}
	if dimension <= 0 {
		return VectorStore{}, errs.E(op, errs.ErrValidation, fmt.Errorf("dimension must be positive, got %d", dimension))
	}
	distance, err := vectordb.ParseDistance(string(distance))
	if err != nil {
		return VectorStore{}, errs.E(op, errs.ErrValidation, err)
	}

	id := r.newID()
	collection := CollectionPrefix + id

	err = r.observe(func() error {
		return r.index.CreateCollection(ctx, collection, dimension, distance)
	})
	if err != nil {
		return VectorStore{}, errs.E(op, errs.ErrBackingStore, err)
	}
	err = r.observe(func() error {
		return r.index.CreateIndex(ctx, collection, vectordb.FieldFile)
	})
	if err != nil {
		dropErr := r.observe(func() error {
			return r.index.DeleteCollection(ctx, collection)
		})
		if dropErr != nil {
			log.Warn("Failed to drop collection after index failure", "collection", collection, "error", dropErr)
		}
		return VectorStore{}, errs.E(op, errs.ErrBackingStore, err)
	}

	now := r.now()
	e := &entry{store: VectorStore{
		ID:         id,
		Name:       name,
		Collection: collection,
		Dimension:  dimension,
		Distance:   distance,
		Files:      make(map[string]FileRecord),
		CreatedAt:  now,
		UpdatedAt:  now,
	}}

	r.mu.Lock()
	r.stores[id] = e
	r.mu.Unlock()

	log.Info("Created vector store", "id", id, "name", name, "dimension", dimension, "distance", distance)
	return e.snapshot(), nil
}

// List returns a summary of every store, oldest first.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.stores))
	for _, e := range r.stores {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	created := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		if !e.deleted {
			s := e.store
			out = append(out, Summary{ID: s.ID, Name: s.Name, Dimension: s.Dimension, Distance: s.Distance})
			created[s.ID] = s.CreatedAt
		}
		e.mu.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool {
		ci, cj := created[out[i].ID], created[out[j].ID]
		if ci.Equal(cj) {
			return out[i].ID < out[j].ID
		}
		return ci.Before(cj)
	})
	return out
}

// Len returns the number of registered stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// Get returns a copy of a store.
func (r *Registry) Get(id string) (VectorStore, error) {
	e, err := r.lookup("get store", id)
	if err != nil {
		return VectorStore{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return VectorStore{}, notFound("get store", id)
	}
	return e.snapshot(), nil
}

// Update renames a store and/or changes its metric. A metric change
// drops and recreates the collection, discarding every stored vector. Once
// the drop has succeeded the file records are cleared, even when the
// recreate then fails.
func (r *Registry) Update(ctx context.Context, id string, name *string, distance *vectordb.Distance) (VectorStore, error) {
	const op = "update store"

	e, err := r.lookup(op, id)
	if err != nil {
		return VectorStore{}, err
	}

	var newName string
	if name != nil {
		newName = strings.TrimSpace(*name)
	}
	if distance != nil {
		d, err := vectordb.ParseDistance(string(*distance))
		if err != nil {
			return VectorStore{}, errs.E(op, errs.ErrValidation, err)
		}
		distance = &d
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return VectorStore{}, notFound(op, id)
	}

	if distance != nil && (*distance != e.store.Distance || e.dropped) {
		if err := r.recreate(ctx, e, *distance); err != nil {
			return VectorStore{}, errs.E(op, errs.ErrBackingStore, err)
		}
	}

	if newName != "" && newName != e.store.Name {
		e.store.Name = newName
		e.store.UpdatedAt = r.now()
	}

	log.Info("Updated vector store", "id", id)
	return e.snapshot(), nil
}

// recreate replaces the store's collection with an empty one using
// distance. The caller holds e.mu.
func (r *Registry) recreate(ctx context.Context, e *entry, distance vectordb.Distance) error {
	s := &e.store

	err := r.observe(func() error {
		return r.index.DeleteCollection(ctx, s.Collection)
	})
	if err != nil {
		return err
	}

	// The old vectors are gone from here on, whatever happens next.
	dropped := len(s.Files)
	s.Files = make(map[string]FileRecord)
	s.UpdatedAt = r.now()
	e.dropped = true

	err = r.observe(func() error {
		return r.index.CreateCollection(ctx, s.Collection, s.Dimension, distance)
	})
	if err != nil {
		log.Error("Collection dropped but not recreated", "id", s.ID, "collection", s.Collection, "files_dropped", dropped, "error", err)
		return err
	}
	s.Distance = distance
	e.dropped = false

	err = r.observe(func() error {
		return r.index.CreateIndex(ctx, s.Collection, vectordb.FieldFile)
	})
	if err != nil {
		return err
	}

	log.Info("Recreated collection with new distance", "id", s.ID, "distance", distance, "files_dropped", dropped)
	return nil
}

// Delete drops the store's collection and then forgets the store. If the
// drop fails the store stays registered.
func (r *Registry) Delete(ctx context.Context, id string) error {
	const op = "delete store"

	e, err := r.lookup(op, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return notFound(op, id)
	}
	err = r.observe(func() error {
		return r.index.DeleteCollection(ctx, e.store.Collection)
	})
	if err != nil {
		e.mu.Unlock()
		return errs.E(op, errs.ErrBackingStore, err)
	}
	e.deleted = true
	e.mu.Unlock()

	r.mu.Lock()
	delete(r.stores, id)
	r.mu.Unlock()

	log.Info("Deleted vector store", "id", id)
	return nil
}

// AddFile upserts the points of one upload and records the file, as one
// step under the store's lock. On upsert failure nothing is recorded.
// rec.ID, rec.Pages and rec.CreatedAt are filled in here.
func (r *Registry) AddFile(ctx context.Context, id string, rec FileRecord, points []vectordb.Point) (FileRecord, error) {
	const op = "add file"

	e, err := r.lookup(op, id)
	if err != nil {
		return FileRecord{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return FileRecord{}, notFound(op, id)
	}

	err = r.observe(func() error {
		return r.index.Upsert(ctx, e.store.Collection, points)
	})
	if err != nil {
		return FileRecord{}, errs.E(op, errs.ErrBackingStore, err)
	}

	rec.ID = r.newID()
	rec.Pages = len(points)
	rec.CreatedAt = r.now()
	e.store.Files[rec.ID] = rec
	e.store.UpdatedAt = rec.CreatedAt

	return rec, nil
}

// ListFiles returns the file records of a store keyed by file ID.
func (r *Registry) ListFiles(id string) (map[string]FileRecord, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Files, nil
}

// GetFile returns one file record. An unknown store or file is ErrNotFound.
func (r *Registry) GetFile(id, fileID string) (FileRecord, error) {
	const op = "get file"

	s, err := r.Get(id)
	if err != nil {
		return FileRecord{}, errs.E(op, errs.ErrNotFound, err)
	}
	rec, ok := s.Files[fileID]
	if !ok {
		return FileRecord{}, errs.E(op, errs.ErrNotFound, fmt.Errorf("file %s not found in store %s", fileID, id))
	}
	return rec, nil
}

// DeleteFile removes every point carrying the file's filename, then the
// record. Other records sharing the filename lose their points too.
func (r *Registry) DeleteFile(ctx context.Context, id, fileID string) error {
	const op = "delete file"

	e, err := r.lookup(op, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return notFound(op, id)
	}

	rec, ok := e.store.Files[fileID]
	if !ok {
		return errs.E(op, errs.ErrNotFound, fmt.Errorf("file %s not found in store %s", fileID, id))
	}

	err = r.observe(func() error {
		return r.index.DeleteByFilter(ctx, e.store.Collection, vectordb.FieldFile, rec.Filename)
	})
	if err != nil {
		return errs.E(op, errs.ErrBackingStore, err)
	}

	delete(e.store.Files, fileID)
	e.store.UpdatedAt = r.now()

	log.Info("Deleted file", "store", id, "file_id", fileID, "filename", rec.Filename)
	return nil
}

func (r *Registry) lookup(op, id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.stores[id]
	r.mu.RUnlock()
	if !ok {
		return nil, notFound(op, id)
	}
	return e, nil
}

// snapshot copies the store; the caller holds e.mu.
func (e *entry) snapshot() VectorStore {
	s := e.store
	s.Files = maps.Clone(e.store.Files)
	if s.Files == nil {
		s.Files = make(map[string]FileRecord)
	}
	return s
}

func notFound(op, id string) error {
	return errs.E(op, errs.ErrNotFound, fmt.Errorf("store %s not found", id))
}
