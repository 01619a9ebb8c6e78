package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultRateLimit = 5 // requests per second
	defaultBurst     = 10
)

// Config holds configuration for the OpenAI-compatible client. Any endpoint
// speaking the OpenAI API works, including local inference servers.
type Config struct {
	// Enabled turns the capability on. When false the factory returns the
	// disabled client.
	Enabled bool `koanf:"enabled"`

	// BaseURL is the API base URL, e.g. "https://api.openai.com/v1".
	BaseURL string `koanf:"base_url"`

	// Model is the chat/completion model name.
	Model string `koanf:"model"`

	// EmbeddingModel is the embedding model name.
	EmbeddingModel string `koanf:"embedding_model"`

	// APIKey authenticates requests. Optional for local servers.
	APIKey string `koanf:"api_key"`

	// Timeout bounds each call.
	Timeout time.Duration `koanf:"timeout"`

	// RateLimit is the allowed requests per second.
	RateLimit float64 `koanf:"rate_limit"`

	// Burst is the rate-limiter burst size.
	Burst int `koanf:"burst"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.Burst == 0 {
		c.Burst = defaultBurst
	}
}

// openAIClient implements Client over langchaingo's OpenAI bindings.
type openAIClient struct {
	model    *openai.LLM
	embedder *embeddings.EmbedderImpl
	timeout  time.Duration
	limiter  *rate.Limiter
}

// NewClient creates the configured client. When cfg.Enabled is false the
// disabled client is returned so callers need no nil checks.
func NewClient(cfg Config) (Client, error) {
	if !cfg.Enabled {
		return Disabled(), nil
	}
	cfg.ApplyDefaults()

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(model)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &openAIClient{
		model:    model,
		embedder: embedder,
		timeout:  cfg.Timeout,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}, nil
}

func (c *openAIClient) prepare(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	return callCtx, cancel, nil
}

func (c *openAIClient) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	callCtx, cancel, err := c.prepare(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	o := applyOptions(opts)
	out, err := llms.GenerateFromSinglePrompt(callCtx, c.model, prompt, callOptions(o)...)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return out, nil
}

func (c *openAIClient) Chat(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	callCtx, cancel, err := c.prepare(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatRole(m.Role), m.Content))
	}

	o := applyOptions(opts)
	resp, err := c.model.GenerateContent(callCtx, content, callOptions(o)...)
	if err != nil {
		return "", fmt.Errorf("generating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}
	return resp.Choices[0].Content, nil
}

func (c *openAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	vec, err := c.embedder.EmbedQuery(callCtx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vec, nil
}

func (c *openAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	vecs, err := c.embedder.EmbedDocuments(callCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vecs, nil
}

func (c *openAIClient) IsAvailable() bool { return true }

func callOptions(o Options) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(o.Temperature)}
	if o.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(o.MaxTokens))
	}
	return opts
}

func chatRole(role string) schema.ChatMessageType {
	switch role {
	case "system":
		return schema.ChatMessageTypeSystem
	case "assistant":
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
