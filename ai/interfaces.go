package ai

import (
	"context"

	"github.com/poiesic/kbase/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Synthesizer turns retrieved passages into a natural-language answer.
// Implementations must be thread-safe for concurrent use and must honour
// context cancellation, since callers bound synthesis with a deadline.
type Synthesizer interface {
	// Synthesize answers question from passages. graph may be nil.
	Synthesize(ctx context.Context, question string, passages []core.Passage, graph *core.GraphContext) (string, error)
}

// Provider aggregates AI services for convenient initialization and lifecycle management.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Synthesizer returns the answer synthesis service, or nil when none is configured.
	Synthesizer() Synthesizer

	// Close releases resources held by the provider and its services.
	Close() error
}
