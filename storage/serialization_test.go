package storage

import (
	"testing"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSerialization(t *testing.T) {
	t.Run("with embedding", func(t *testing.T) {
		chunk := &core.Chunk{
			ID:        core.ChunkID("P1", "infra.txt", 2),
			ProjectID: "P1",
			Filename:  "infra.txt",
			Ordinal:   2,
			Content:   "server web01 hosts Payroll",
			Embedding: []float32{0.1, 0.2, 0.3},
		}

		got, err := UnmarshalChunk(MarshalChunk(chunk))
		require.NoError(t, err)
		assert.Equal(t, chunk, got)
	})

	t.Run("without embedding", func(t *testing.T) {
		chunk := &core.Chunk{ID: 7, ProjectID: "P1", Filename: "a.txt", Content: "text"}

		got, err := UnmarshalChunk(MarshalChunk(chunk))
		require.NoError(t, err)
		assert.Nil(t, got.Embedding)
		assert.Equal(t, chunk, got)
	})
}

func TestEntitySerialization(t *testing.T) {
	inserted := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)
	entity := &core.Entity{
		ID:         core.EntityID("P1", core.EntityServer, "web01"),
		ProjectID:  "P1",
		Name:       "web01",
		Type:       core.EntityServer,
		Attributes: map[string]string{"ip": "10.0.0.5", "os": "Ubuntu 22.04"},
		InsertedAt: inserted,
		UpdatedAt:  inserted.Add(time.Minute),
	}

	got, err := UnmarshalEntity(MarshalEntity(entity))
	require.NoError(t, err)
	assert.Equal(t, entity.Name, got.Name)
	assert.Equal(t, entity.Type, got.Type)
	assert.Equal(t, entity.Attributes, got.Attributes)
	assert.True(t, inserted.Equal(got.InsertedAt))
	assert.True(t, entity.UpdatedAt.Equal(got.UpdatedAt))
	assert.Equal(t, time.UTC, got.InsertedAt.Location())
}

func TestRelationshipSerialization(t *testing.T) {
	src := core.EntityID("P1", core.EntityServer, "web01")
	dst := core.EntityID("P1", core.EntityApplication, "Payroll")
	rel := &core.Relationship{
		ID:         core.RelationshipID("P1", src, dst, core.RelationHosts),
		ProjectID:  "P1",
		SourceID:   src,
		SourceName: "web01",
		SourceType: core.EntityServer,
		TargetID:   dst,
		TargetName: "Payroll",
		TargetType: core.EntityApplication,
		Type:       core.RelationHosts,
	}

	got, err := UnmarshalRelationship(MarshalRelationship(rel))
	require.NoError(t, err)
	assert.Equal(t, rel, got)
}

func TestRecordSerialization_PreservesTime(t *testing.T) {
	processed := time.Date(2025, 3, 4, 5, 6, 7, 8000, time.UTC)
	rec := &core.ProcessingRecord{
		ProjectID:       "P1",
		EmbeddingsCount: 4,
		EntitiesCount:   3,
		FileCount:       2,
		ProcessedAt:     processed,
		Files: []core.FileFingerprint{
			{Filename: "infra.txt", UploadedAt: processed.Add(-time.Hour), ContentHash: "abc"},
		},
	}

	got, err := UnmarshalRecord(MarshalRecord(rec))
	require.NoError(t, err)
	assert.True(t, processed.Equal(got.ProcessedAt))
	assert.Equal(t, 4, got.EmbeddingsCount)
	require.Len(t, got.Files, 1)
	assert.Equal(t, rec.Files[0].ContentHash, got.Files[0].ContentHash)
	assert.True(t, rec.Files[0].UploadedAt.Equal(got.Files[0].UploadedAt))
}

func TestUnmarshal_Errors(t *testing.T) {
	t.Run("empty data", func(t *testing.T) {
		_, err := UnmarshalEntity(nil)
		assert.ErrorIs(t, err, ErrSerializationFailed)

		_, err = UnmarshalChunk([]byte{})
		assert.ErrorIs(t, err, ErrSerializationFailed)

		_, err = UnmarshalRecord(nil)
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})

	t.Run("truncated data", func(t *testing.T) {
		data := MarshalRelationship(&core.Relationship{
			ID: 1, ProjectID: "P1", SourceID: 2, SourceName: "a", TargetID: 3, TargetName: "b", Type: core.RelationHosts,
		})
		_, err := UnmarshalRelationship(data[:len(data)-3])
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})
}
