package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyAnswer is returned when the model produces no usable text.
var ErrEmptyAnswer = errors.New("synthesizer returned an empty answer")

// Synthesizer implements ai.Synthesizer using an OpenAI-compatible chat model.
type Synthesizer struct {
	client *openai.LLM
	logger *slog.Logger
}

func newSynthesizer(config *ai.Config) (*Synthesizer, error) {
	client, err := openai.New(
		openai.WithBaseURL(config.SynthesisHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.SynthesisModel),
	)
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		client: client,
		logger: slog.Default().With("component", "openai-synthesizer", "model", config.SynthesisModel),
	}, nil
}

// NewSynthesizer creates a synthesizer using the provided configuration.
func NewSynthesizer(config *ai.Config) (ai.Synthesizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.SynthesisEnabled() {
		return nil, errors.New("config: SynthesisModel is required")
	}
	return newSynthesizer(config)
}

// Synthesize asks the chat model to answer question from passages and the
// optional entity graph.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, passages []core.Passage, graph *core.GraphContext) (string, error) {
	s.logger.Debug("synthesizing answer", "passages", len(passages), "graph", graph != nil && !graph.Empty())

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(synthesisSystemPrompt)},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(fmt.Sprintf(synthesisUserTemplate,
				question, formatPassages(passages), formatGraph(graph)))},
		},
	}

	resp, err := s.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		s.logger.Error("synthesis request failed", "err", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}
