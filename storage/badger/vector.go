package badger

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// VectorIndex implements storage.VectorIndex with a brute-force scan over the
// project's key range.
type VectorIndex struct {
	backend *Backend
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex creates a VectorIndex on an open backend. The backend is not
// closed by the index.
func NewVectorIndex(backend *Backend) *VectorIndex {
	return &VectorIndex{backend: backend}
}

// Close releases resources. VectorIndex has no resources to release.
func (v *VectorIndex) Close() error {
	return nil
}

// Upsert writes chunks with their embeddings.
func (v *VectorIndex) Upsert(ctx context.Context, project core.ProjectID, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return v.backend.update(ctx, func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if chunk.ProjectID != project {
				return fmt.Errorf("%w: chunk %s belongs to %q", storage.ErrInvalidQuery, chunk.ID, chunk.ProjectID)
			}
			if len(chunk.Embedding) == 0 {
				return fmt.Errorf("%w: chunk %s has no embedding", storage.ErrInvalidQuery, chunk.ID)
			}
			value := storage.MarshalChunk(chunk)
			if err := tx.Set(makeVectorKey(project, chunk.ID), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// NearestNeighbors finds the k chunks closest to vector by cosine distance.
func (v *VectorIndex) NearestNeighbors(ctx context.Context, project core.ProjectID, vector []float32, k int) ([]*core.Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", storage.ErrInvalidQuery)
	}

	var results []*core.Neighbor
	err := v.backend.scan(ctx, makeProjectPrefix(vectorPrefix, project), func(val []byte) error {
		chunk, err := storage.UnmarshalChunk(val)
		if err != nil {
			return err
		}
		if len(chunk.Embedding) != len(vector) {
			return fmt.Errorf("%w: index has %d, query has %d", storage.ErrDimensionMismatch, len(chunk.Embedding), len(vector))
		}
		results = append(results, &core.Neighbor{
			Chunk:    chunk,
			Distance: CosineDistance(vector, chunk.Embedding),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteAll removes every vector in the project.
func (v *VectorIndex) DeleteAll(ctx context.Context, project core.ProjectID) error {
	return v.backend.deletePrefix(ctx, makeProjectPrefix(vectorPrefix, project))
}

// Count returns the number of vectors in the project.
func (v *VectorIndex) Count(ctx context.Context, project core.ProjectID) (int, error) {
	return v.backend.count(ctx, makeProjectPrefix(vectorPrefix, project))
}

// CosineDistance returns 1 - cosine similarity. Zero vectors are maximally distant.
func CosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}
