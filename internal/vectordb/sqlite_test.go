package vectordb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunkim/solar-vector-store/internal/errs"
)

func setupSQLiteIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestNewSQLiteIndex(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "vectors.db")

	idx, err := NewSQLiteIndex(dbPath)
	require.NoError(t, err)
	defer idx.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.Equal(t, "sqlite", idx.Backend())
}

func TestSQLiteIndexContract(t *testing.T) {
	testIndexContract(t, setupSQLiteIndex(t), "vs_6f1c2b7e-8d7a-4c8e-9a55-2f3b1d6a9c10")
}

func TestSQLiteIndexRejectsDot(t *testing.T) {
	ctx := context.Background()
	idx := setupSQLiteIndex(t)

	err := idx.CreateCollection(ctx, "vs_dot", 3, Dot)
	assert.ErrorIs(t, err, errs.ErrBackingStore)
}

func TestSQLiteIndexFailedRecreateKeepsCollection(t *testing.T) {
	ctx := context.Background()
	idx := setupSQLiteIndex(t)

	require.NoError(t, idx.CreateCollection(ctx, "vs_keep", 2, Cosine))
	require.NoError(t, idx.Upsert(ctx, "vs_keep", []Point{{ID: "p1", Vector: []float32{1, 0}, Payload: Payload{File: "a.pdf"}}}))

	require.Error(t, idx.CreateCollection(ctx, "vs_keep", 2, Dot))

	n, err := idx.Count(ctx, "vs_keep")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := setupSQLiteIndex(t)

	require.NoError(t, idx.CreateCollection(ctx, "vs_dims", 3, Cosine))

	err := idx.Upsert(ctx, "vs_dims", []Point{
		{ID: "ok", Vector: []float32{1, 0, 0}},
		{ID: "bad", Vector: []float32{1, 0}},
	})
	assert.ErrorIs(t, err, errs.ErrBackingStore)

	n, err := idx.Count(ctx, "vs_dims")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "the whole batch is rolled back")
}

func TestSQLiteIndexRejectsBadNames(t *testing.T) {
	ctx := context.Background()
	idx := setupSQLiteIndex(t)

	assert.ErrorIs(t, idx.CreateCollection(ctx, `x"; DROP TABLE collections; --`, 3, Cosine), errs.ErrBackingStore)
	assert.ErrorIs(t, idx.CreateIndex(ctx, "vs_missing", FieldFile), errs.ErrBackingStore)
	assert.ErrorIs(t, idx.CreateIndex(ctx, "vs_missing", "text"), errs.ErrBackingStore)
}

func TestSerializeEmbedding(t *testing.T) {
	buf := serializeEmbedding([]float32{1, -2.5})
	require.Len(t, buf, 8)
	// 1.0f little endian
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, buf[:4])
}
