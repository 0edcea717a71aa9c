package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrChunkStoreRequired is returned when a chunk store is not provided.
	ErrChunkStoreRequired = errors.New("chunk store required")

	// ErrGraphStoreRequired is returned when a graph store is not provided.
	ErrGraphStoreRequired = errors.New("graph store required")

	// ErrLedgerRequired is returned when a ledger repository is not provided.
	ErrLedgerRequired = errors.New("ledger repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidTransition is returned when a run attempts an illegal state change.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrReprocessDelete is returned when removing a prior generation fails.
	ErrReprocessDelete = errors.New("reprocess delete failed")

	// ErrEmbeddingMismatch is returned when the provider returns the wrong number or size of vectors.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")

	// ErrRunNotFound is returned when a run ID is unknown.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunCanceled is returned when a run is cancelled before completion.
	ErrRunCanceled = errors.New("run canceled")

	// ErrFilesFailed is returned when one or more file steps failed.
	ErrFilesFailed = errors.New("file processing failed")

	// ErrNotProcessed is returned by Reindex for a project with no ledger record.
	ErrNotProcessed = errors.New("project has not been processed")

	// ErrNoDocuments is returned when a run is started with no files.
	ErrNoDocuments = errors.New("no documents to ingest")

	// ErrCoordinatorClosed is returned after Release.
	ErrCoordinatorClosed = errors.New("coordinator closed")
)

// RunError records the stage and file in which a run step failed.
type RunError struct {
	Stage State
	File  string
	Err   error
}

func (e *RunError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.File, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
