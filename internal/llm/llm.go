// Package llm defines the language-model capability consumed by the pipeline
// agents and the semantic validation layer.
//
// The capability degrades gracefully: IsAvailable() == false disables only
// the optional semantic layer and LLM-assisted agent features, never the
// rest of the pipeline.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by the disabled client for every call.
var ErrUnavailable = errors.New("language model capability unavailable")

// Message is one chat turn.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	Content string `json:"content"`
}

// Options tunes a single generate/chat call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Option mutates call options.
type Option func(*Options)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = t }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

func applyOptions(opts []Option) Options {
	o := Options{Temperature: 0.2}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Client is the language-model capability contract.
type Client interface {
	// Generate completes a single prompt.
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)

	// Chat completes a multi-turn conversation.
	Chat(ctx context.Context, messages []Message, opts ...Option) (string, error)

	// Embed returns the embedding vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// IsAvailable reports whether the backing model can be called.
	IsAvailable() bool
}

// Disabled returns a client whose IsAvailable is false and whose calls all
// fail with ErrUnavailable.
func Disabled() Client { return disabledClient{} }

type disabledClient struct{}

func (disabledClient) Generate(context.Context, string, ...Option) (string, error) {
	return "", ErrUnavailable
}

func (disabledClient) Chat(context.Context, []Message, ...Option) (string, error) {
	return "", ErrUnavailable
}

func (disabledClient) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrUnavailable
}

func (disabledClient) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, ErrUnavailable
}

func (disabledClient) IsAvailable() bool { return false }
