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

package kbase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/ai/openai"
	"github.com/poiesic/kbase/chunker"
	"github.com/poiesic/kbase/config"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/retrieval"
	"github.com/poiesic/kbase/storage"
	"github.com/poiesic/kbase/storage/badger"
	"github.com/poiesic/kbase/storage/pgvector"
)

// KnowledgeBase wires storage, AI services, ingestion and retrieval together.
type KnowledgeBase struct {
	backend      *badger.Backend
	stores       *badger.Stores
	vectors      storage.VectorIndex
	ownsVectors  bool
	provider     ai.Provider
	coordinator  *ingestion.Coordinator
	engine       *retrieval.Engine
	graphContext bool
	logger       *slog.Logger
}

// Option configures a KnowledgeBase.
type Option func(*options)

type options struct {
	provider ai.Provider
	vectors  storage.VectorIndex
	sink     ingestion.Sink
	monitor  retrieval.Monitor
	logger   *slog.Logger
}

// WithProvider supplies the AI provider instead of building one from config.
// The knowledge base takes ownership and closes it.
func WithProvider(p ai.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithVectorIndex supplies the vector index instead of the configured one.
// The caller keeps ownership.
func WithVectorIndex(v storage.VectorIndex) Option {
	return func(o *options) { o.vectors = v }
}

// WithSink sets the ingestion progress sink.
func WithSink(s ingestion.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithMonitor sets the retrieval monitor.
func WithMonitor(m retrieval.Monitor) Option {
	return func(o *options) { o.monitor = m }
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New opens a knowledge base described by cfg. A nil cfg uses config.Default().
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*KnowledgeBase, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kb := &KnowledgeBase{
		graphContext: cfg.Retrieval.GraphContext,
		logger:       o.logger.With("component", "kbase"),
	}
	ok := false
	defer func() {
		if !ok {
			kb.Close()
		}
	}()

	backend, err := badger.OpenBackend(cfg.DataDir, cfg.InMemory, o.logger)
	if err != nil {
		return nil, err
	}
	kb.backend = backend
	kb.stores = badger.NewStores(backend)

	kb.provider = o.provider
	if kb.provider == nil {
		if kb.provider, err = openai.NewProvider(cfg.AIConfig()); err != nil {
			return nil, err
		}
	}

	if kb.vectors, kb.ownsVectors, err = openVectors(ctx, cfg, kb.stores, o); err != nil {
		return nil, err
	}

	ch, err := chunker.New(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkStride)
	if err != nil {
		return nil, err
	}
	ingestOpts := []ingestion.Option{
		ingestion.WithLogger(o.logger),
		ingestion.WithChunker(ch),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithRetry(cfg.Ingestion.MaxAttempts, cfg.RetryBaseDelay()),
		ingestion.WithSink(o.sink),
	}
	if cfg.Ingestion.PoolSize > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	kb.coordinator, err = ingestion.NewCoordinator(ingestion.Stores{
		Vectors: kb.vectors,
		Chunks:  kb.stores.Chunks,
		Graph:   kb.stores.Graph,
		Ledger:  kb.stores.Ledger,
	}, kb.provider.Embedder(), ingestOpts...)
	if err != nil {
		return nil, err
	}

	engineOpts := []retrieval.Option{
		retrieval.WithLogger(o.logger),
		retrieval.WithGraphStore(kb.stores.Graph),
		retrieval.WithSynthesisTimeout(cfg.SynthesisTimeout()),
		retrieval.WithDefaultK(cfg.Retrieval.K),
		retrieval.WithMonitor(o.monitor),
	}
	if s := kb.provider.Synthesizer(); s != nil {
		engineOpts = append(engineOpts, retrieval.WithSynthesizer(s))
	}
	kb.engine, err = retrieval.NewEngine(kb.vectors, kb.stores.Chunks, kb.provider.Embedder(), engineOpts...)
	if err != nil {
		return nil, err
	}

	ok = true
	kb.logger.Info("knowledge base opened", "data_dir", cfg.DataDir, "in_memory", cfg.InMemory, "vector_store", cfg.VectorStore.Type)
	return kb, nil
}

// openVectors picks the vector index. The bool reports whether the
// knowledge base must close it.
func openVectors(ctx context.Context, cfg *config.Config, stores *badger.Stores, o *options) (storage.VectorIndex, bool, error) {
	if o.vectors != nil {
		return o.vectors, false, nil
	}
	switch cfg.VectorStore.Type {
	case config.VectorStorePgvector:
		pg := cfg.VectorStore.Postgres
		idx, err := pgvector.Open(ctx, pg.DSN, pg.Dimension,
			pgvector.WithTable(pg.Table),
			pgvector.WithLogger(o.logger))
		if err != nil {
			return nil, false, err
		}
		return idx, true, nil
	default:
		return stores.Vectors, false, nil
	}
}

// Ingest starts an asynchronous ingestion and returns its run ID.
func (kb *KnowledgeBase) Ingest(ctx context.Context, project core.ProjectID, files []core.SourceDocument) (string, error) {
	return kb.coordinator.Ingest(ctx, project, files)
}

// Process ingests synchronously.
func (kb *KnowledgeBase) Process(ctx context.Context, project core.ProjectID, files []core.SourceDocument) (*ingestion.RunSummary, error) {
	return kb.coordinator.Process(ctx, project, files)
}

// Run looks up an ingestion run.
func (kb *KnowledgeBase) Run(runID string) (*ingestion.Run, error) {
	return kb.coordinator.Run(runID)
}

// Cancel stops an ingestion run.
func (kb *KnowledgeBase) Cancel(runID string) error {
	return kb.coordinator.Cancel(runID)
}

// ProcessingStatus returns the project's ledger record, or nil if absent.
func (kb *KnowledgeBase) ProcessingStatus(ctx context.Context, project core.ProjectID) (*core.ProcessingRecord, error) {
	return kb.coordinator.ProcessingStatus(ctx, project)
}

// Query answers a question from a project's documents. Graph context is
// added when enabled in the configuration or requested per query.
func (kb *KnowledgeBase) Query(ctx context.Context, project core.ProjectID, question string, opts ...retrieval.QueryOption) (*core.RetrievalResult, error) {
	if kb.graphContext {
		opts = append([]retrieval.QueryOption{retrieval.WithGraphContext()}, opts...)
	}
	return kb.engine.Query(ctx, project, question, opts...)
}

// ClearProject removes everything stored for a project.
func (kb *KnowledgeBase) ClearProject(ctx context.Context, project core.ProjectID) error {
	return kb.coordinator.ClearProject(ctx, project)
}

// Reindex rebuilds a project's vectors from its stored chunk text.
func (kb *KnowledgeBase) Reindex(ctx context.Context, project core.ProjectID) (*core.ProcessingRecord, error) {
	return kb.coordinator.Reindex(ctx, project)
}

// Stores exposes the badger-backed stores.
func (kb *KnowledgeBase) Stores() *badger.Stores {
	return kb.stores
}

// Close stops ingestion and releases every owned resource.
func (kb *KnowledgeBase) Close() error {
	var errs []error
	if kb.coordinator != nil {
		kb.coordinator.Release()
	}
	if kb.provider != nil {
		if err := kb.provider.Close(); err != nil {
			kb.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if kb.ownsVectors && kb.vectors != nil {
		if err := kb.vectors.Close(); err != nil {
			kb.logger.Error("error closing vector index", "err", err)
			errs = append(errs, err)
		}
	}
	if kb.backend != nil {
		if err := kb.backend.Close(); err != nil {
			kb.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
	}
	return errors.Join(errs...)
}
