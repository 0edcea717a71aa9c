package retrieval

import (
	"log/slog"

	"github.com/poiesic/kbase/core"
)

// Monitor provides hooks to observe a query as it moves through the tiers.
// Implement this interface to trace intermediate steps and results.
type Monitor interface {
	Start(project core.ProjectID, question string)
	AfterVectorSearch(neighbors []*core.Neighbor, err error)
	AfterKeywordSearch(matches []*core.KeywordMatch, err error)
	AfterGraphLookup(graph *core.GraphContext, err error)
	AfterSynthesis(answer string, err error)
	Finish(result *core.RetrievalResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.ProjectID, _ string)                   {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.Neighbor, _ error)      {}
func (n *noopMonitor) AfterKeywordSearch(_ []*core.KeywordMatch, _ error) {}
func (n *noopMonitor) AfterGraphLookup(_ *core.GraphContext, _ error)     {}
func (n *noopMonitor) AfterSynthesis(_ string, _ error)                   {}
func (n *noopMonitor) Finish(_ *core.RetrievalResult)                     {}

// LogMonitor reports each tier to a logger at debug level.
type LogMonitor struct {
	logger *slog.Logger
}

var _ Monitor = (*LogMonitor)(nil)

// NewLogMonitor creates a LogMonitor. A nil logger uses slog.Default().
func NewLogMonitor(logger *slog.Logger) *LogMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMonitor{logger: logger.With("component", "retrieval-monitor")}
}

func (m *LogMonitor) Start(project core.ProjectID, question string) {
	m.logger.Debug("query started", "project", project, "question", question)
}

func (m *LogMonitor) AfterVectorSearch(neighbors []*core.Neighbor, err error) {
	m.logger.Debug("vector tier", "hits", len(neighbors), "err", err)
}

func (m *LogMonitor) AfterKeywordSearch(matches []*core.KeywordMatch, err error) {
	m.logger.Debug("keyword tier", "hits", len(matches), "err", err)
}

func (m *LogMonitor) AfterGraphLookup(graph *core.GraphContext, err error) {
	entities, rels := 0, 0
	if graph != nil {
		entities, rels = len(graph.Entities), len(graph.Relationships)
	}
	m.logger.Debug("graph lookup", "entities", entities, "relationships", rels, "err", err)
}

func (m *LogMonitor) AfterSynthesis(answer string, err error) {
	m.logger.Debug("synthesis", "length", len(answer), "err", err)
}

func (m *LogMonitor) Finish(result *core.RetrievalResult) {
	m.logger.Debug("query finished", "kind", result.Kind, "passages", len(result.Passages), "degraded", result.Degraded)
}
