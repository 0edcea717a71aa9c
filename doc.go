// Package kbase is a knowledge ingestion and hybrid retrieval engine for
// project documents.
//
// Documents are split into overlapping word windows, embedded into a
// per-project vector index, and mined for infrastructure entities and their
// relationships. A processing ledger records what each project's index
// reflects, so unchanged document sets are skipped and changed ones are
// rebuilt from scratch.
//
// Queries try the vector index first, then keyword matching over the stored
// chunk text, and otherwise say that nothing relevant was found. An optional
// LLM turns passages into an answer; if it is slow or failing the passages
// are returned as they are.
//
//	kb, err := kbase.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer kb.Close()
//
//	runID, err := kb.Ingest(ctx, "P1", docs)
//	result, err := kb.Query(ctx, "P1", "What hosts PayrollApp?")
package kbase
