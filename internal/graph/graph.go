// Package graph provides the knowledge-graph capability: related-entity
// lookups that enrich pattern discovery. The collaborator owns its own
// caching; the core never caches insights.
package graph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/workflow"
)

// Sentinel errors for graph operations.
var (
	// ErrInvalidConfig indicates invalid graph configuration.
	ErrInvalidConfig = errors.New("invalid graph configuration")

	// ErrUnavailable indicates the graph backend cannot be reached.
	ErrUnavailable = errors.New("knowledge graph unavailable")
)

// Provider names accepted by the factory.
const (
	ProviderHTTP    = "http"
	ProviderChromem = "chromem"
)

// Update is a diff applied to the graph backend.
type Update struct {
	// Entities to upsert.
	Entities []workflow.Entity `json:"entities,omitempty"`

	// Relationships to upsert.
	Relationships []workflow.Relationship `json:"relationships,omitempty"`

	// Documents to index, keyed by document ID.
	Documents map[string]string `json:"documents,omitempty"`
}

// Provider is the knowledge-graph capability contract.
type Provider interface {
	// Query returns entities and relationships related to the text.
	Query(ctx context.Context, query string) (*workflow.GraphInsight, error)

	// ApplyUpdate upserts a diff into the graph.
	ApplyUpdate(ctx context.Context, update Update) error

	// InvalidateCache drops any collaborator-side caches.
	InvalidateCache(ctx context.Context) error
}

// Config selects and configures the graph backend.
type Config struct {
	// Provider is "chromem" (embedded index, default) or "http" (remote
	// or subprocess graph service).
	Provider string `koanf:"provider"`

	HTTP    HTTPConfig    `koanf:"http"`
	Chromem ChromemConfig `koanf:"chromem"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderChromem
	}
	c.HTTP.ApplyDefaults()
	c.Chromem.ApplyDefaults()
}

// NewProvider creates the configured provider. The LLM client backs the
// embedded index's embeddings; the HTTP provider ignores it.
func NewProvider(cfg Config, llmClient llm.Client, logger *zap.Logger) (Provider, error) {
	cfg.ApplyDefaults()

	switch cfg.Provider {
	case ProviderHTTP:
		return NewHTTPProvider(cfg.HTTP, logger)
	case ProviderChromem:
		return NewChromemProvider(cfg.Chromem, llmClient, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
