package storage

import (
	"context"

	"github.com/poiesic/kbase/core"
)

// VectorIndex stores chunk embeddings in per-project namespaces.
// Implementations must never return points from a project other than the one queried.
type VectorIndex interface {
	// Upsert writes chunks with their embeddings, replacing points with the same chunk ID.
	Upsert(ctx context.Context, project core.ProjectID, chunks ...*core.Chunk) error

	// NearestNeighbors returns up to k chunks ordered by ascending cosine distance.
	// An empty namespace yields an empty result, not an error.
	NearestNeighbors(ctx context.Context, project core.ProjectID, vector []float32, k int) ([]*core.Neighbor, error)

	// DeleteAll removes every point in the project's namespace.
	DeleteAll(ctx context.Context, project core.ProjectID) error

	// Count returns the number of points in the project's namespace.
	Count(ctx context.Context, project core.ProjectID) (int, error)

	// Close releases resources held by the index.
	Close() error
}

// ChunkStore retains the text of every indexed chunk, independent of the vector
// backend, so retrieval can fall back to keyword matching.
type ChunkStore interface {
	// PutChunks stores chunk text. Embeddings are not retained.
	PutChunks(ctx context.Context, chunks ...*core.Chunk) error

	// ListChunks returns all chunks of a project ordered by filename then ordinal.
	ListChunks(ctx context.Context, project core.ProjectID) ([]*core.Chunk, error)

	// SearchKeyword returns up to k chunks containing the given terms, best first.
	SearchKeyword(ctx context.Context, project core.ProjectID, terms []string, k int) ([]*core.KeywordMatch, error)

	// DeleteChunks removes all chunk text for a project.
	DeleteChunks(ctx context.Context, project core.ProjectID) error
}

// GraphStore holds the per-project entity/relationship graph.
type GraphStore interface {
	// UpsertEntities inserts entities or merges attributes into existing ones with the same identity.
	UpsertEntities(ctx context.Context, entities ...*core.Entity) error

	// UpsertRelationships inserts relationships, replacing ones with the same identity.
	UpsertRelationships(ctx context.Context, rels ...*core.Relationship) error

	// GetEntity returns ErrNotFound if the entity doesn't exist.
	GetEntity(ctx context.Context, project core.ProjectID, id core.ID) (*core.Entity, error)

	// FindEntities returns entities whose names match any of the terms.
	FindEntities(ctx context.Context, project core.ProjectID, terms []string) ([]*core.Entity, error)

	// RelationshipsOf returns relationships touching any of the given entities.
	RelationshipsOf(ctx context.Context, project core.ProjectID, ids ...core.ID) ([]*core.Relationship, error)

	// CountEntities returns the number of distinct entities in a project.
	CountEntities(ctx context.Context, project core.ProjectID) (int, error)

	// CountRelationships returns the number of distinct relationships in a project.
	CountRelationships(ctx context.Context, project core.ProjectID) (int, error)

	// DeleteGraph removes the project's whole subgraph.
	DeleteGraph(ctx context.Context, project core.ProjectID) error
}

// LedgerRepository persists one ProcessingRecord per project.
type LedgerRepository interface {
	// SaveRecord atomically replaces the project's record.
	SaveRecord(ctx context.Context, record *core.ProcessingRecord) error

	// LoadRecord retrieves the record for a project.
	// Returns nil, nil if the project was never processed.
	LoadRecord(ctx context.Context, project core.ProjectID) (*core.ProcessingRecord, error)

	// DeleteRecord removes the project's record. Deleting a missing record is not an error.
	DeleteRecord(ctx context.Context, project core.ProjectID) error
}
