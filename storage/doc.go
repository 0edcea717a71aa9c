// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the storage abstraction layer for kbase.
//
// Every store is partitioned by core.ProjectID. A read for one project never
// returns data written for another, and every store can drop a project's data
// wholesale so a project can be reprocessed or cleared.
//
// # Stores
//
//   - VectorIndex: chunk embeddings, nearest-neighbour search by cosine distance
//   - ChunkStore: retained chunk text for the keyword fallback path
//   - GraphStore: entities and relationships, upserted by identity
//   - LedgerRepository: one ProcessingRecord per project
//
// The badger subpackage implements all four on an embedded BadgerDB. The
// pgvector subpackage implements VectorIndex on PostgreSQL; when it is used the
// chunk text copy still lives in badger, so keyword retrieval keeps working
// while Postgres is unreachable.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	index := badger.NewVectorIndex(backend)
//	ledger := badger.NewLedgerRepository(backend)
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
package storage
