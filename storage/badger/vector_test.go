package badger

import (
	"context"
	"testing"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkWith(project core.ProjectID, file string, ordinal int, content string, vec []float32) *core.Chunk {
	return &core.Chunk{
		ID:        core.ChunkID(project, file, ordinal),
		ProjectID: project,
		Filename:  file,
		Ordinal:   ordinal,
		Content:   content,
		Embedding: vec,
	}
}

func TestVectorIndex_NearestNeighbors(t *testing.T) {
	stores := newTestStores(t)
	idx := stores.Vectors
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "P1",
		chunkWith("P1", "a.txt", 0, "close", []float32{1, 0, 0}),
		chunkWith("P1", "a.txt", 1, "medium", []float32{0.7, 0.7, 0}),
		chunkWith("P1", "a.txt", 2, "far", []float32{0, 0, 1}),
	))

	results, err := idx.NearestNeighbors(ctx, "P1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].Chunk.Content)
	assert.Equal(t, "medium", results[1].Chunk.Content)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestVectorIndex_ProjectIsolation(t *testing.T) {
	stores := newTestStores(t)
	idx := stores.Vectors
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "P1", chunkWith("P1", "a.txt", 0, "p1", []float32{1, 0})))
	require.NoError(t, idx.Upsert(ctx, "P2", chunkWith("P2", "a.txt", 0, "p2", []float32{1, 0})))

	results, err := idx.NearestNeighbors(ctx, "P1", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.ProjectID("P1"), results[0].Chunk.ProjectID)

	results, err = idx.NearestNeighbors(ctx, "P3", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndex_UpsertReplaces(t *testing.T) {
	stores := newTestStores(t)
	idx := stores.Vectors
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "P1", chunkWith("P1", "a.txt", 0, "old", []float32{1, 0})))
	require.NoError(t, idx.Upsert(ctx, "P1", chunkWith("P1", "a.txt", 0, "new", []float32{0, 1})))

	n, err := idx.Count(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := idx.NearestNeighbors(ctx, "P1", []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", results[0].Chunk.Content)
}

func TestVectorIndex_DeleteAll(t *testing.T) {
	stores := newTestStores(t)
	idx := stores.Vectors
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "P1", chunkWith("P1", "a.txt", 0, "x", []float32{1, 0})))
	require.NoError(t, idx.Upsert(ctx, "P2", chunkWith("P2", "a.txt", 0, "y", []float32{1, 0})))

	require.NoError(t, idx.DeleteAll(ctx, "P1"))
	require.NoError(t, idx.DeleteAll(ctx, "P1"))

	n, err := idx.Count(ctx, "P1")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = idx.Count(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorIndex_Errors(t *testing.T) {
	stores := newTestStores(t)
	idx := stores.Vectors
	ctx := context.Background()

	t.Run("wrong project", func(t *testing.T) {
		err := idx.Upsert(ctx, "P1", chunkWith("P2", "a.txt", 0, "x", []float32{1}))
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("missing embedding", func(t *testing.T) {
		err := idx.Upsert(ctx, "P1", chunkWith("P1", "a.txt", 0, "x", nil))
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("non-positive k", func(t *testing.T) {
		_, err := idx.NearestNeighbors(ctx, "P1", []float32{1}, 0)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		require.NoError(t, idx.Upsert(ctx, "P9", chunkWith("P9", "a.txt", 0, "x", []float32{1, 0, 0})))
		_, err := idx.NearestNeighbors(ctx, "P9", []float32{1, 0}, 1)
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	})
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{2, 0}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(1), CosineDistance([]float32{0, 0}, []float32{1, 0}))
}
