package vectordb

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgVectorIndexContract(t *testing.T) {
	dsn := os.Getenv("SVS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SVS_TEST_PG_DSN not set")
	}

	idx, err := NewPgVectorIndex(context.Background(), dsn)
	require.NoError(t, err)
	defer idx.Close()

	testIndexContract(t, idx, "vs_pgvector_contract")
}

func TestFormatEmbedding(t *testing.T) {
	assert.Equal(t, "[0.5,-1,2.25]", formatEmbedding([]float32{0.5, -1, 2.25}))
	assert.Equal(t, "[]", formatEmbedding(nil))
}

func TestPgScore(t *testing.T) {
	assert.InDelta(t, 0.75, pgScore(Cosine, 0.25), 1e-9)
	assert.InDelta(t, 3.0, pgScore(Dot, -3), 1e-9)
	assert.InDelta(t, 2.0, pgScore(Euclid, 2), 1e-9)
	assert.InDelta(t, 2.0, pgScore(Manhattan, 2), 1e-9)

	op, opclass := pgOperator(Manhattan)
	assert.Equal(t, "<+>", op)
	assert.Equal(t, "vector_l1_ops", opclass)
}

func TestNewPgVectorIndexRequiresDSN(t *testing.T) {
	_, err := NewPgVectorIndex(context.Background(), "")
	assert.Error(t, err)
}
