// Package pgvector implements storage.VectorIndex on PostgreSQL with the
// pgvector extension.
//
// All projects share one table; every statement filters on project_id so a
// query can only ever see its own namespace. Distances use the cosine
// operator (<=>) and an HNSW index on vector_cosine_ops.
package pgvector
