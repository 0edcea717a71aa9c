package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

const (
	// DefaultK is the number of passages returned when no k is given.
	DefaultK = 5

	// DefaultSynthesisTimeout bounds one synthesizer call.
	DefaultSynthesisTimeout = 30 * time.Second

	// NoRelevantContent is the answer when no tier finds anything.
	NoRelevantContent = "No relevant content was found in this project's documents."

	// verbatimBoost is added to vector scores of passages containing every question term.
	verbatimBoost = 0.3

	// maxGraphEntities caps how many matched entities are expanded.
	maxGraphEntities = 20
)

// Engine provides hybrid retrieval over one or more projects.
type Engine struct {
	vectors          storage.VectorIndex
	chunks           storage.ChunkStore
	graph            storage.GraphStore
	embedder         ai.Embedder
	synthesizer      ai.Synthesizer
	synthesisTimeout time.Duration
	defaultK         int
	monitor          Monitor
	logger           *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithGraphStore enables graph-augmented queries.
func WithGraphStore(graph storage.GraphStore) Option {
	return func(e *Engine) error {
		e.graph = graph
		return nil
	}
}

// WithSynthesizer sets the answer synthesizer. Without one, answers are the
// passages themselves.
func WithSynthesizer(s ai.Synthesizer) Option {
	return func(e *Engine) error {
		e.synthesizer = s
		return nil
	}
}

// WithSynthesisTimeout bounds each synthesizer call.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("synthesis timeout must be positive, got %s", d)
		}
		e.synthesisTimeout = d
		return nil
	}
}

// WithDefaultK sets the passage count used when a query gives none.
func WithDefaultK(k int) Option {
	return func(e *Engine) error {
		if k < 1 {
			return fmt.Errorf("k must be positive, got %d", k)
		}
		e.defaultK = k
		return nil
	}
}

// WithMonitor sets a monitor observing every query.
func WithMonitor(m Monitor) Option {
	return func(e *Engine) error {
		if m == nil {
			m = &noopMonitor{}
		}
		e.monitor = m
		return nil
	}
}

// NewEngine creates a retrieval engine.
func NewEngine(vectors storage.VectorIndex, chunks storage.ChunkStore, embedder ai.Embedder, opts ...Option) (*Engine, error) {
	if vectors == nil {
		return nil, ErrVectorIndexRequired
	}
	if chunks == nil {
		return nil, ErrChunkStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		vectors:          vectors,
		chunks:           chunks,
		embedder:         embedder,
		synthesisTimeout: DefaultSynthesisTimeout,
		defaultK:         DefaultK,
		monitor:          &noopMonitor{},
		logger:           slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "retrieval")

	return e, nil
}

// QueryOption adjusts a single query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	k       int
	graph   bool
	monitor Monitor
}

// WithK sets how many passages to retrieve. Values below 1 use the default.
func WithK(k int) QueryOption {
	return func(o *queryOptions) {
		if k > 0 {
			o.k = k
		}
	}
}

// WithGraphContext merges matching entities and relationships into the
// synthesizer input and the result.
func WithGraphContext() QueryOption {
	return func(o *queryOptions) {
		o.graph = true
	}
}

// WithQueryMonitor observes this query in place of the engine's monitor.
func WithQueryMonitor(m Monitor) QueryOption {
	return func(o *queryOptions) {
		if m != nil {
			o.monitor = m
		}
	}
}

// Query answers question from project's documents. Backend failures fall
// through the tiers and never surface as errors; only invalid input does.
func (e *Engine) Query(ctx context.Context, project core.ProjectID, question string, opts ...QueryOption) (*core.RetrievalResult, error) {
	if err := core.ValidateProjectID(project); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	o := queryOptions{k: e.defaultK, monitor: e.monitor}
	for _, opt := range opts {
		opt(&o)
	}
	monitor := o.monitor
	monitor.Start(project, question)

	passages, kind := e.vectorTier(ctx, project, question, o.k, monitor)
	if len(passages) == 0 {
		passages, kind = e.keywordTier(ctx, project, question, o.k, monitor)
	}
	if len(passages) == 0 {
		result := &core.RetrievalResult{
			AnswerText: NoRelevantContent,
			Passages:   []core.Passage{},
			Kind:       core.ResultNone,
		}
		monitor.Finish(result)
		return result, nil
	}

	result := &core.RetrievalResult{Passages: passages, Kind: kind}
	if o.graph {
		result.Graph = e.graphContext(ctx, project, question, monitor)
	}
	result.AnswerText, result.Degraded = e.answer(ctx, question, passages, result.Graph, monitor)

	monitor.Finish(result)
	return result, nil
}

// vectorTier embeds the question and searches the vector index.
func (e *Engine) vectorTier(ctx context.Context, project core.ProjectID, question string, k int, monitor Monitor) ([]core.Passage, core.ResultKind) {
	embedding, err := e.embedder.EmbedText(ctx, question)
	if err != nil {
		e.logger.Warn("embedding question failed, falling back", "project", project, "err", err)
		monitor.AfterVectorSearch(nil, err)
		return nil, core.ResultNone
	}

	neighbors, err := e.vectors.NearestNeighbors(ctx, project, embedding, k)
	monitor.AfterVectorSearch(neighbors, err)
	if err != nil {
		e.logger.Warn("vector search failed, falling back", "project", project, "err", err)
		return nil, core.ResultNone
	}

	passages := make([]core.Passage, 0, len(neighbors))
	for _, n := range neighbors {
		if n == nil || n.Chunk == nil {
			continue
		}
		score := 1 - n.Distance
		if containsAllQueryWords(n.Chunk.Content, question) {
			score += verbatimBoost
		}
		passages = append(passages, passageOf(n.Chunk, score))
	}
	// stable so equal scores keep index order
	slices.SortStableFunc(passages, func(a, b core.Passage) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return passages, core.ResultVector
}

// keywordTier matches question terms against the retained chunk text.
func (e *Engine) keywordTier(ctx context.Context, project core.ProjectID, question string, k int, monitor Monitor) ([]core.Passage, core.ResultKind) {
	terms := queryTerms(question)
	if len(terms) == 0 {
		monitor.AfterKeywordSearch(nil, nil)
		return nil, core.ResultNone
	}

	matches, err := e.chunks.SearchKeyword(ctx, project, terms, k)
	monitor.AfterKeywordSearch(matches, err)
	if err != nil {
		e.logger.Warn("keyword search failed", "project", project, "err", err)
		return nil, core.ResultNone
	}

	passages := make([]core.Passage, 0, len(matches))
	for _, m := range matches {
		if m == nil || m.Chunk == nil {
			continue
		}
		passages = append(passages, passageOf(m.Chunk, m.Score))
	}
	return passages, core.ResultKeyword
}

// graphContext collects entities named in the question and the
// relationships touching them. Failures only shrink the context.
func (e *Engine) graphContext(ctx context.Context, project core.ProjectID, question string, monitor Monitor) *core.GraphContext {
	if e.graph == nil {
		monitor.AfterGraphLookup(nil, nil)
		return nil
	}

	terms := queryTerms(question)
	entities, err := e.graph.FindEntities(ctx, project, terms)
	if err != nil {
		e.logger.Warn("graph lookup failed", "project", project, "err", err)
		monitor.AfterGraphLookup(nil, err)
		return nil
	}
	if len(entities) > maxGraphEntities {
		entities = entities[:maxGraphEntities]
	}

	graph := &core.GraphContext{Entities: entities}
	if len(entities) > 0 {
		ids := make([]core.ID, len(entities))
		for i, ent := range entities {
			ids[i] = ent.ID
		}
		rels, err := e.graph.RelationshipsOf(ctx, project, ids...)
		if err != nil {
			e.logger.Warn("relationship lookup failed", "project", project, "err", err)
		} else {
			graph.Relationships = rels
			graph.Entities = e.withEndpoints(ctx, project, entities, rels)
		}
	}

	monitor.AfterGraphLookup(graph, nil)
	if graph.Empty() {
		return nil
	}
	return graph
}

// withEndpoints adds the far side of each relationship to entities.
func (e *Engine) withEndpoints(ctx context.Context, project core.ProjectID, entities []*core.Entity, rels []*core.Relationship) []*core.Entity {
	seen := make(map[core.ID]bool, len(entities))
	for _, ent := range entities {
		seen[ent.ID] = true
	}
	for _, r := range rels {
		for _, id := range []core.ID{r.SourceID, r.TargetID} {
			if seen[id] {
				continue
			}
			seen[id] = true
			ent, err := e.graph.GetEntity(ctx, project, id)
			if err != nil {
				continue
			}
			entities = append(entities, ent)
		}
	}
	return entities
}

// answer synthesizes an answer under the timeout, falling back to the
// passages verbatim. The bool reports a failed or timed-out synthesis.
func (e *Engine) answer(ctx context.Context, question string, passages []core.Passage, graph *core.GraphContext, monitor Monitor) (string, bool) {
	if e.synthesizer == nil {
		return verbatim(passages), false
	}

	synthCtx, cancel := context.WithTimeout(ctx, e.synthesisTimeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		text, err := e.synthesizer.Synthesize(synthCtx, question, passages, graph)
		ch <- reply{text, err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-synthCtx.Done():
		r.err = synthCtx.Err()
	}
	if r.err == nil && strings.TrimSpace(r.text) == "" {
		r.err = ErrEmptyAnswer
	}
	monitor.AfterSynthesis(r.text, r.err)

	if r.err != nil {
		e.logger.Warn("synthesis failed, returning passages", "err", r.err)
		return verbatim(passages), true
	}
	return r.text, false
}

func passageOf(c *core.Chunk, score float32) core.Passage {
	return core.Passage{
		ChunkID:  c.ID,
		Filename: c.Filename,
		Content:  c.Content,
		Score:    score,
	}
}

// verbatim concatenates passages with their source filenames.
func verbatim(passages []core.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s", p.Filename, p.Content)
	}
	return b.String()
}
