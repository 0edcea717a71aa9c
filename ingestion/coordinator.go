package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/chunker"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/extract"
	"github.com/poiesic/kbase/storage"
)

const (
	defaultBatchSize   = 32
	defaultMaxAttempts = 3
	defaultBaseDelay   = 200 * time.Millisecond
	defaultMaxRetained = 1024
	defaultSinkBuffer  = 256
)

// Stores are the persistence collaborators of a Coordinator.
type Stores struct {
	Vectors storage.VectorIndex
	Chunks  storage.ChunkStore
	Graph   storage.GraphStore
	Ledger  storage.LedgerRepository
}

func (s Stores) validate() error {
	switch {
	case s.Vectors == nil:
		return ErrVectorIndexRequired
	case s.Chunks == nil:
		return ErrChunkStoreRequired
	case s.Graph == nil:
		return ErrGraphStoreRequired
	case s.Ledger == nil:
		return ErrLedgerRequired
	}
	return nil
}

// Coordinator runs ingestion for projects.
type Coordinator struct {
	stores      Stores
	embedder    ai.Embedder
	chunker     *chunker.Chunker
	extractor   *extract.Extractor
	pool        *ants.Pool
	batchSize   int
	retryPolicy RetryPolicy
	maxRetained int
	sink        Sink
	sinkBuffer  int
	events      *dispatcher
	now         func() time.Time
	locks       *projectLocks
	logger      *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*Run
	order  []string
	closed bool
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithPoolSize sets the number of files processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(c *Coordinator) error {
		if size < 1 {
			size = 1
		}
		if c.pool != nil {
			c.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		c.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per provider call.
func WithBatchSize(size int) Option {
	return func(c *Coordinator) error {
		if size < 1 {
			size = 1
		}
		c.batchSize = size
		return nil
	}
}

// WithRetry sets the attempt count and base backoff for single store and
// provider calls.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Coordinator) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.retryPolicy.MaxAttempts = maxAttempts
		c.retryPolicy.BaseDelay = baseDelay
		return nil
	}
}

// WithSink sets the progress sink. Default discards events.
func WithSink(sink Sink) Option {
	return func(c *Coordinator) error {
		if sink == nil {
			sink = noopSink{}
		}
		c.sink = sink
		return nil
	}
}

// WithSinkBuffer sets how many progress events may wait for a slow sink
// before new ones are dropped. Default 256.
func WithSinkBuffer(n int) Option {
	return func(c *Coordinator) error {
		if n < 1 {
			n = 1
		}
		c.sinkBuffer = n
		return nil
	}
}

// WithChunker replaces the default 500/450 word chunker.
func WithChunker(ch *chunker.Chunker) Option {
	return func(c *Coordinator) error {
		if ch != nil {
			c.chunker = ch
		}
		return nil
	}
}

// WithExtractor replaces the default entity extractor.
func WithExtractor(x *extract.Extractor) Option {
	return func(c *Coordinator) error {
		if x != nil {
			c.extractor = x
		}
		return nil
	}
}

// WithClock sets the time source used for ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) error {
		if now != nil {
			c.now = now
		}
		return nil
	}
}

// WithMaxRetainedRuns bounds how many finished runs remain queryable by ID.
func WithMaxRetainedRuns(n int) Option {
	return func(c *Coordinator) error {
		if n < 1 {
			n = 1
		}
		c.maxRetained = n
		return nil
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(stores Stores, embedder ai.Embedder, opts ...Option) (*Coordinator, error) {
	if err := stores.validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	c := &Coordinator{
		stores:      stores,
		embedder:    embedder,
		chunker:     chunker.Default(),
		extractor:   extract.NewDefault(),
		pool:        pool,
		batchSize:   defaultBatchSize,
		retryPolicy: RetryPolicy{MaxAttempts: defaultMaxAttempts, BaseDelay: defaultBaseDelay},
		maxRetained: defaultMaxRetained,
		sink:        noopSink{},
		sinkBuffer:  defaultSinkBuffer,
		now:         time.Now,
		locks:       newProjectLocks(),
		logger:      slog.Default(),
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		runs:        make(map[string]*Run),
	}

	for _, opt := range opts {
		if optErr := opt(c); optErr != nil {
			c.Release()
			return nil, optErr
		}
	}
	c.logger = c.logger.With("component", "ingestion")
	c.events = newDispatcher(c.sink, c.sinkBuffer)

	return c, nil
}

// Process ingests files synchronously and returns the final summary.
// A failed run returns both the summary and the cause.
func (c *Coordinator) Process(ctx context.Context, project core.ProjectID, files []core.SourceDocument) (*RunSummary, error) {
	if err := validateInput(project, files); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run, err := c.register(project, files, cancel)
	if err != nil {
		return nil, err
	}
	summary := c.execute(runCtx, run)
	return summary, run.Err()
}

// Ingest starts an asynchronous run and returns its ID. The run is not bound
// to ctx; use Cancel to stop it.
func (c *Coordinator) Ingest(ctx context.Context, project core.ProjectID, files []core.SourceDocument) (string, error) {
	if err := validateInput(project, files); err != nil {
		return "", err
	}
	runCtx, cancel := context.WithCancel(c.baseCtx)

	run, err := c.register(project, files, cancel)
	if err != nil {
		cancel()
		return "", err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.execute(runCtx, run)
	}()

	c.logger.Debug("ingestion started", "run", run.ID(), "project", project, "files", len(files))
	return run.ID(), nil
}

// Run returns a run by ID.
func (c *Coordinator) Run(id string) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// Cancel stops a run between file steps. Cancelling a finished run is a no-op.
func (c *Coordinator) Cancel(id string) error {
	run, err := c.Run(id)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// ProcessingStatus returns the project's ledger record, or nil if the project
// has not been processed.
func (c *Coordinator) ProcessingStatus(ctx context.Context, project core.ProjectID) (*core.ProcessingRecord, error) {
	if err := core.ValidateProjectID(project); err != nil {
		return nil, err
	}
	return c.stores.Ledger.LoadRecord(ctx, project)
}

// ClearProject cancels in-flight runs for project and removes everything
// stored for it. Clearing an empty project succeeds.
func (c *Coordinator) ClearProject(ctx context.Context, project core.ProjectID) error {
	if err := core.ValidateProjectID(project); err != nil {
		return err
	}
	c.cancelProject(project)

	unlock, err := c.locks.lock(ctx, project)
	if err != nil {
		return err
	}
	defer unlock()

	// ledger first, so a partial clear never looks processed
	if err := c.retry(ctx, func() error { return c.stores.Ledger.DeleteRecord(ctx, project) }); err != nil {
		return fmt.Errorf("clear %s ledger: %w", project, err)
	}
	if err := c.deleteData(ctx, project); err != nil {
		return fmt.Errorf("clear %s: %w", project, err)
	}
	c.logger.Info("project cleared", "project", project)
	return nil
}

// Reindex rebuilds a project's vector index from the retained chunk text,
// for example after changing the embedding model or vector backend.
func (c *Coordinator) Reindex(ctx context.Context, project core.ProjectID) (*core.ProcessingRecord, error) {
	if err := core.ValidateProjectID(project); err != nil {
		return nil, err
	}
	unlock, err := c.locks.lock(ctx, project)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := c.stores.Ledger.LoadRecord(ctx, project)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotProcessed, project)
	}

	chunks, err := c.stores.Chunks.ListChunks(ctx, project)
	if err != nil {
		return nil, err
	}
	if err := c.retry(ctx, func() error { return c.stores.Vectors.DeleteAll(ctx, project) }); err != nil {
		return nil, err
	}
	if err := c.embedAndIndex(ctx, project, chunks, false); err != nil {
		return nil, err
	}

	record.EmbeddingsCount = len(chunks)
	if err := c.retry(ctx, func() error { return c.stores.Ledger.SaveRecord(ctx, record) }); err != nil {
		return nil, err
	}
	c.logger.Info("project reindexed", "project", project, "chunks", len(chunks))
	return record, nil
}

// Release cancels in-flight runs, waits for them, and frees the worker pool.
// The coordinator should not be used after calling Release.
func (c *Coordinator) Release() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.baseCancel()
	c.wg.Wait()
	if c.pool != nil {
		c.pool.Release()
	}
	if c.events != nil {
		c.events.close()
		if n := c.events.Dropped(); n > 0 {
			c.logger.Warn("progress events dropped", "count", n)
		}
	}
}

// DroppedEvents returns how many progress events the sink could not keep up with.
func (c *Coordinator) DroppedEvents() int64 {
	if c.events == nil {
		return 0
	}
	return c.events.Dropped()
}

func validateInput(project core.ProjectID, files []core.SourceDocument) error {
	if err := core.ValidateProjectID(project); err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNoDocuments
	}
	return core.ValidateDocuments(files)
}

// register records a new run and prunes the oldest finished runs.
func (c *Coordinator) register(project core.ProjectID, files []core.SourceDocument, cancel context.CancelFunc) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCoordinatorClosed
	}

	run := newRun(uuid.NewString(), project, files, cancel, c.events, c.now)
	c.runs[run.ID()] = run
	c.order = append(c.order, run.ID())

	for i := 0; len(c.order) > c.maxRetained && i < len(c.order); {
		id := c.order[i]
		if c.runs[id].State().Terminal() {
			delete(c.runs, id)
			c.order = append(c.order[:i], c.order[i+1:]...)
			continue
		}
		i++
	}
	return run, nil
}

func (c *Coordinator) cancelProject(project core.ProjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, run := range c.runs {
		if run.Project() == project && !run.State().Terminal() {
			c.logger.Info("cancelling run", "run", run.ID(), "project", project)
			run.cancel()
		}
	}
}

// retry wraps a single store or provider call.
func (c *Coordinator) retry(ctx context.Context, op func() error) error {
	return c.retryPolicy.Do(ctx, c.logger, op)
}

// deleteData removes vectors, chunk text and graph for project.
func (c *Coordinator) deleteData(ctx context.Context, project core.ProjectID) error {
	var errs []error
	if err := c.retry(ctx, func() error { return c.stores.Vectors.DeleteAll(ctx, project) }); err != nil {
		errs = append(errs, fmt.Errorf("vectors: %w", err))
	}
	if err := c.retry(ctx, func() error { return c.stores.Chunks.DeleteChunks(ctx, project) }); err != nil {
		errs = append(errs, fmt.Errorf("chunks: %w", err))
	}
	if err := c.retry(ctx, func() error { return c.stores.Graph.DeleteGraph(ctx, project) }); err != nil {
		errs = append(errs, fmt.Errorf("graph: %w", err))
	}
	return errors.Join(errs...)
}

func canceled(err error) error {
	return fmt.Errorf("%w: %w", ErrRunCanceled, err)
}
