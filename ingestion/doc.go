// Package ingestion coordinates turning project documents into indexed chunks
// and graph entities.
//
// A Coordinator runs one ingestion per call through the states
//
//	Idle -> Checking -> (Skipped | Reprocessing) -> Chunking -> Extracting -> Indexing -> LedgerUpdate -> Done
//
// with Failed reachable from any non-terminal state. Runs for the same project
// are serialized by a per-project lock; runs for different projects proceed in
// parallel. Per-file work is spread over a bounded ants worker pool.
//
// The processing ledger is written only after every file has been fully
// indexed, so a cancelled or failed run leaves the project looking
// unprocessed and a retry is always safe.
package ingestion
