package vectordb

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an in-process vector database for development and testing.
// Search is brute force over every point of the collection.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	distance  Distance
	indexes   map[string]bool
	points    map[string]Point
}

// NewMemoryIndex creates an empty in-memory vector database.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryIndex) Backend() string { return "memory" }

// CreateCollection replaces any existing collection with an empty one.
func (m *MemoryIndex) CreateCollection(ctx context.Context, name string, dimension int, distance Distance) error {
	if dimension <= 0 {
		return backingErr("create collection", fmt.Errorf("invalid dimension %d", dimension))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.collections[name] = &memoryCollection{
		dimension: dimension,
		distance:  distance,
		indexes:   make(map[string]bool),
		points:    make(map[string]Point),
	}
	return nil
}

func (m *MemoryIndex) CreateIndex(ctx context.Context, collection, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return backingErr("create index", fmt.Errorf("collection %s not found", collection))
	}
	c.indexes[field] = true
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return backingErr("upsert", fmt.Errorf("collection %s not found", collection))
	}
	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return backingErr("upsert", fmt.Errorf("point %s has dimension %d, collection expects %d", p.ID, len(p.Vector), c.dimension))
		}
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		p.Vector = vec
		c.points[p.ID] = p
	}
	return nil
}

func (m *MemoryIndex) DeleteByFilter(ctx context.Context, collection, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return backingErr("delete points", fmt.Errorf("collection %s not found", collection))
	}
	if field != FieldFile {
		return backingErr("delete points", fmt.Errorf("unsupported filter field %q", field))
	}
	for id, p := range c.points {
		if p.Payload.File == value {
			delete(c.points, id)
		}
	}
	return nil
}

func (m *MemoryIndex) DeleteCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections, name)
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, backingErr("search", fmt.Errorf("collection %s not found", collection))
	}
	if len(vector) != c.dimension {
		return nil, backingErr("search", fmt.Errorf("query has dimension %d, collection expects %d", len(vector), c.dimension))
	}

	hits := make([]Hit, 0, len(c.points))
	for _, p := range c.points {
		hits = append(hits, Hit{ID: p.ID, Score: score(c.distance, vector, p.Vector), Payload: p.Payload})
	}

	higher := c.distance.HigherIsBetter()
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		if higher {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Score < hits[j].Score
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of points in a collection, or -1 if it does not exist.
func (m *MemoryIndex) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return -1
	}
	return len(c.points)
}

// Info returns a collection's dimension and metric.
func (m *MemoryIndex) Info(collection string) (int, Distance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return 0, "", false
	}
	return c.dimension, c.distance, true
}

// Close is a no-op for the in-memory index.
func (m *MemoryIndex) Close() error {
	return nil
}
