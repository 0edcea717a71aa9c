package ingestion

import (
	"time"

	"github.com/poiesic/kbase/core"
)

// ShouldReprocess decides whether a project's documents must be ingested again.
//
// A missing record always requires processing. Otherwise any file uploaded
// after the record was written requires it. When the record carries file
// fingerprints, a changed content hash, a file without a fingerprint, or a
// fingerprinted file that is no longer present also requires it.
func ShouldReprocess(record *core.ProcessingRecord, files []core.SourceDocument) bool {
	if record == nil {
		return true
	}
	for _, f := range files {
		if f.UploadedAt.After(record.ProcessedAt) {
			return true
		}
	}
	if len(record.Files) == 0 {
		return false
	}

	known := make(map[string]string, len(record.Files))
	for _, fp := range record.Files {
		known[fp.Filename] = fp.ContentHash
	}
	current := make(map[string]struct{}, len(files))
	for _, f := range files {
		current[f.Filename] = struct{}{}
		hash, ok := known[f.Filename]
		if !ok || hash != core.ContentHash(f.Text) {
			return true
		}
	}
	for name := range known {
		if _, ok := current[name]; !ok {
			return true
		}
	}
	return false
}

// fingerprints records the identity of each file processed in a run.
func fingerprints(files []core.SourceDocument) []core.FileFingerprint {
	fps := make([]core.FileFingerprint, len(files))
	for i, f := range files {
		fps[i] = core.FileFingerprint{
			Filename:    f.Filename,
			UploadedAt:  f.UploadedAt.UTC(),
			ContentHash: core.ContentHash(f.Text),
		}
	}
	return fps
}

// newRecord builds the ledger entry written at the end of a successful run.
func newRecord(project core.ProjectID, files []core.SourceDocument, embeddings, entities, relationships int, now time.Time) *core.ProcessingRecord {
	return &core.ProcessingRecord{
		ProjectID:          project,
		EmbeddingsCount:    embeddings,
		EntitiesCount:      entities,
		RelationshipsCount: relationships,
		FileCount:          len(files),
		ProcessedAt:        now.UTC(),
		Files:              fingerprints(files),
	}
}
