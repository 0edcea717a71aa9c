package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/kbase/core"
)

// MockSynthesizer is a test double for ai.Synthesizer.
type MockSynthesizer struct {
	// SynthesizeFunc is called by Synthesize if set.
	SynthesizeFunc func(ctx context.Context, question string, passages []core.Passage, graph *core.GraphContext) (string, error)

	mu        sync.Mutex
	callCount int
	lastGraph *core.GraphContext
}

// NewMockSynthesizer creates a mock synthesizer with default behavior.
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

// Synthesize returns a fixed answer naming the question and passage count.
func (m *MockSynthesizer) Synthesize(ctx context.Context, question string, passages []core.Passage, graph *core.GraphContext) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.lastGraph = graph
	fn := m.SynthesizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, question, passages, graph)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("answer to %q from %d passages", question, len(passages)), nil
}

// CallCount returns the number of Synthesize calls.
func (m *MockSynthesizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastGraph returns the graph context passed to the most recent call.
func (m *MockSynthesizer) LastGraph() *core.GraphContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastGraph
}
