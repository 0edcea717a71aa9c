package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// ChunkStore implements storage.ChunkStore for BadgerDB.
type ChunkStore struct {
	backend *Backend
}

var _ storage.ChunkStore = (*ChunkStore)(nil)

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(backend *Backend) *ChunkStore {
	return &ChunkStore{backend: backend}
}

// PutChunks stores chunk text without embeddings.
func (s *ChunkStore) PutChunks(ctx context.Context, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.backend.update(ctx, func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if err := core.ValidateProjectID(chunk.ProjectID); err != nil {
				return err
			}
			stored := *chunk
			stored.Embedding = nil
			value := storage.MarshalChunk(&stored)
			if err := tx.Set(makeChunkKey(chunk.ProjectID, chunk.ID), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListChunks returns all chunks of a project ordered by filename then ordinal.
func (s *ChunkStore) ListChunks(ctx context.Context, project core.ProjectID) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := s.backend.scan(ctx, makeProjectPrefix(chunkPrefix, project), func(val []byte) error {
		chunk, err := storage.UnmarshalChunk(val)
		if err != nil {
			return err
		}
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(chunks, compareChunks)
	return chunks, nil
}

// SearchKeyword scores every chunk of the project by term overlap.
func (s *ChunkStore) SearchKeyword(ctx context.Context, project core.ProjectID, terms []string, k int) ([]*core.KeywordMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", storage.ErrInvalidQuery)
	}
	if len(terms) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}

	var matches []*core.KeywordMatch
	err := s.backend.scan(ctx, makeProjectPrefix(chunkPrefix, project), func(val []byte) error {
		chunk, err := storage.UnmarshalChunk(val)
		if err != nil {
			return err
		}
		if score := storage.KeywordScore(chunk.Content, lowered); score > 0 {
			matches = append(matches, &core.KeywordMatch{Chunk: chunk, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b *core.KeywordMatch) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return compareChunks(a.Chunk, b.Chunk)
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// DeleteChunks removes all chunk text for a project.
func (s *ChunkStore) DeleteChunks(ctx context.Context, project core.ProjectID) error {
	return s.backend.deletePrefix(ctx, makeProjectPrefix(chunkPrefix, project))
}

func compareChunks(a, b *core.Chunk) int {
	if c := cmp.Compare(a.Filename, b.Filename); c != 0 {
		return c
	}
	return cmp.Compare(a.Ordinal, b.Ordinal)
}
