package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunkim/solar-vector-store/internal/errs"
)

func TestMemoryIndexContract(t *testing.T) {
	testIndexContract(t, NewMemoryIndex(), "vs_memory")
}

func TestMemoryIndexDimensionChecks(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	err := idx.CreateCollection(ctx, "c", 0, Cosine)
	assert.ErrorIs(t, err, errs.ErrBackingStore)

	require.NoError(t, idx.CreateCollection(ctx, "c", 2, Dot))

	err = idx.Upsert(ctx, "c", []Point{{ID: "1", Vector: []float32{1, 2, 3}}})
	assert.ErrorIs(t, err, errs.ErrBackingStore)
	assert.Equal(t, 0, idx.Count("c"), "a rejected batch stores nothing")

	_, err = idx.Search(ctx, "c", []float32{1}, 1)
	assert.ErrorIs(t, err, errs.ErrBackingStore)
}

func TestMemoryIndexDotOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.CreateCollection(ctx, "c", 2, Dot))
	require.NoError(t, idx.Upsert(ctx, "c", []Point{
		{ID: "small", Vector: []float32{1, 0}},
		{ID: "large", Vector: []float32{5, 0}},
		{ID: "negative", Vector: []float32{-1, 0}},
	}))

	hits, err := idx.Search(ctx, "c", []float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"large", "small", "negative"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestMemoryIndexInfo(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	_, _, ok := idx.Info("missing")
	assert.False(t, ok)
	assert.Equal(t, -1, idx.Count("missing"))

	require.NoError(t, idx.CreateCollection(ctx, "c", 4, Manhattan))
	dim, dist, ok := idx.Info("c")
	assert.True(t, ok)
	assert.Equal(t, 4, dim)
	assert.Equal(t, Manhattan, dist)
}

func TestMemoryIndexUnknownCollection(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	assert.ErrorIs(t, idx.CreateIndex(ctx, "nope", FieldFile), errs.ErrBackingStore)
	assert.ErrorIs(t, idx.Upsert(ctx, "nope", nil), errs.ErrBackingStore)
	assert.ErrorIs(t, idx.DeleteByFilter(ctx, "nope", FieldFile, "x"), errs.ErrBackingStore)
}
