package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

const defaultTable = "kbase_vectors"

var (
	// ErrInvalidDimension indicates a non-positive embedding dimension.
	ErrInvalidDimension = errors.New("embedding dimension must be positive")

	// ErrInvalidTable indicates a table name that is not a plain SQL identifier.
	ErrInvalidTable = errors.New("invalid table name")

	tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
)

// Index implements storage.VectorIndex on a PostgreSQL table.
type Index struct {
	db        *sql.DB
	ownsDB    bool
	dimension int
	table     string
	logger    *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index) error

// WithTable overrides the table name.
func WithTable(name string) Option {
	return func(i *Index) error {
		if !tableName.MatchString(name) {
			return fmt.Errorf("%w: %q", ErrInvalidTable, name)
		}
		i.table = name
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) error {
		i.logger = logger
		return nil
	}
}

// Open connects to dsn, verifies the connection and ensures the schema exists.
func Open(ctx context.Context, dsn string, dimension int, opts ...Option) (*Index, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	idx, err := New(ctx, db, dimension, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	idx.ownsDB = true
	return idx, nil
}

// New creates an Index on an existing connection pool and ensures the schema exists.
// The pool is not closed by Close.
func New(ctx context.Context, db *sql.DB, dimension int, opts ...Option) (*Index, error) {
	if dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	idx := &Index{
		db:        db,
		dimension: dimension,
		table:     defaultTable,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	idx.logger = idx.logger.With("component", "pgvector", "table", idx.table)

	if err := idx.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			project_id TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (project_id, chunk_id)
		)`, i.table, i.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, i.table, i.table),
	}
	for _, stmt := range statements {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: ensure schema: %w", err)
		}
	}
	i.logger.Debug("schema ready", "dimension", i.dimension)
	return nil
}

// Close closes the connection pool if the index opened it.
func (i *Index) Close() error {
	if i.ownsDB {
		return i.db.Close()
	}
	return nil
}

// Upsert writes chunks in a single transaction.
func (i *Index) Upsert(ctx context.Context, project core.ProjectID, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if c.ProjectID != project {
			return fmt.Errorf("%w: chunk %s belongs to %q", storage.ErrInvalidQuery, c.ID, c.ProjectID)
		}
		if len(c.Embedding) != i.dimension {
			return fmt.Errorf("%w: index has %d, chunk has %d", storage.ErrDimensionMismatch, i.dimension, len(c.Embedding))
		}
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (project_id, chunk_id, filename, ordinal, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, chunk_id) DO UPDATE SET
			filename = EXCLUDED.filename,
			ordinal = EXCLUDED.ordinal,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`, i.table))
	if err != nil {
		return fmt.Errorf("pgvector: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		_, err := stmt.ExecContext(ctx, string(project), c.ID.String(), c.Filename, c.Ordinal, c.Content, pgvector.NewVector(c.Embedding))
		if err != nil {
			return fmt.Errorf("pgvector: upsert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// NearestNeighbors returns the k closest chunks of the project by cosine distance.
// Returned chunks carry no embedding.
func (i *Index) NearestNeighbors(ctx context.Context, project core.ProjectID, vector []float32, k int) ([]*core.Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", storage.ErrInvalidQuery)
	}
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("%w: index has %d, query has %d", storage.ErrDimensionMismatch, i.dimension, len(vector))
	}

	rows, err := i.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT chunk_id, filename, ordinal, content, embedding <=> $2 AS distance
		FROM %s
		WHERE project_id = $1
		ORDER BY embedding <=> $2, chunk_id
		LIMIT $3`, i.table), string(project), pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector: nearest neighbors: %w", err)
	}
	defer rows.Close()

	var results []*core.Neighbor
	for rows.Next() {
		var (
			chunkID  string
			distance float64
			chunk    = &core.Chunk{ProjectID: project}
		)
		if err := rows.Scan(&chunkID, &chunk.Filename, &chunk.Ordinal, &chunk.Content, &distance); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if chunk.ID, err = core.ParseID(chunkID); err != nil {
			return nil, fmt.Errorf("%w: chunk id %q: %w", storage.ErrSerializationFailed, chunkID, err)
		}
		results = append(results, &core.Neighbor{Chunk: chunk, Distance: float32(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: rows: %w", err)
	}
	return results, nil
}

// DeleteAll removes every row of the project.
func (i *Index) DeleteAll(ctx context.Context, project core.ProjectID) error {
	res, err := i.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE project_id = $1`, i.table), string(project))
	if err != nil {
		return fmt.Errorf("pgvector: delete project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		i.logger.Debug("deleted project vectors", "project", project, "rows", n)
	}
	return nil
}

// Count returns the number of rows of the project.
func (i *Index) Count(ctx context.Context, project core.ProjectID) (int, error) {
	var n int
	err := i.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE project_id = $1`, i.table), string(project)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgvector: count: %w", err)
	}
	return n, nil
}
