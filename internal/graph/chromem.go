package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/workflow"
)

// ChromemConfig holds configuration for the embedded graph index.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string `koanf:"path"`

	// Collection is the collection name for node documentation.
	Collection string `koanf:"collection"`

	// MaxResults caps the entities returned per query.
	MaxResults int `koanf:"max_results"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/loomd/graph"
	}
	if c.Collection == "" {
		c.Collection = "loom_nodes"
	}
	if c.MaxResults == 0 {
		c.MaxResults = 5
	}
}

// ChromemProvider serves graph queries from an embedded chromem-go index of
// node documentation. It needs an available LLM capability for embeddings;
// without one, queries return an empty insight rather than failing the
// pattern stage.
type ChromemProvider struct {
	db         *chromem.DB
	collection *chromem.Collection
	llm        llm.Client
	cfg        ChromemConfig
	logger     *zap.Logger

	// mu serializes index writes; chromem queries are safe concurrently.
	mu sync.Mutex
}

// NewChromemProvider opens (or creates) the persistent index.
func NewChromemProvider(cfg ChromemConfig, llmClient llm.Client, logger *zap.Logger) (*ChromemProvider, error) {
	if llmClient == nil {
		llmClient = llm.Disabled()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	p := &ChromemProvider{
		db:     db,
		llm:    llmClient,
		cfg:    cfg,
		logger: logger.Named("graph.chromem"),
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, p.embed)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", cfg.Collection, err)
	}
	p.collection = collection

	return p, nil
}

// embed adapts the LLM capability to chromem's embedding function.
func (p *ChromemProvider) embed(ctx context.Context, text string) ([]float32, error) {
	return p.llm.Embed(ctx, text)
}

// Query returns the nearest indexed entities for the text. An unavailable
// embedding capability yields an empty insight, not an error: graph
// enrichment is additive to pattern discovery.
func (p *ChromemProvider) Query(ctx context.Context, query string) (*workflow.GraphInsight, error) {
	if !p.llm.IsAvailable() {
		p.logger.Debug("embeddings unavailable, returning empty insight")
		return &workflow.GraphInsight{}, nil
	}

	n := p.cfg.MaxResults
	if count := p.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return &workflow.GraphInsight{}, nil
	}

	results, err := p.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	insight := &workflow.GraphInsight{}
	var names []string
	for _, r := range results {
		entity := workflow.Entity{
			Name:  r.ID,
			Kind:  r.Metadata["kind"],
			Score: float64(r.Similarity),
		}
		insight.RelatedEntities = append(insight.RelatedEntities, entity)
		names = append(names, r.ID)

		if related := r.Metadata["related"]; related != "" {
			for _, to := range strings.Split(related, ",") {
				insight.Relationships = append(insight.Relationships, workflow.Relationship{
					From: r.ID,
					To:   strings.TrimSpace(to),
					Kind: "related_to",
				})
			}
		}
	}
	if len(names) > 0 {
		insight.Summary = fmt.Sprintf("related building blocks: %s", strings.Join(names, ", "))
	}
	return insight, nil
}

// ApplyUpdate indexes the update's documents and entities.
func (p *ChromemProvider) ApplyUpdate(ctx context.Context, update Update) error {
	if !p.llm.IsAvailable() {
		return fmt.Errorf("%w: embeddings required to index documents", ErrUnavailable)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var docs []chromem.Document
	for id, content := range update.Documents {
		docs = append(docs, chromem.Document{ID: id, Content: content})
	}
	for _, e := range update.Entities {
		docs = append(docs, chromem.Document{
			ID:       e.Name,
			Content:  e.Name,
			Metadata: map[string]string{"kind": e.Kind},
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if err := p.collection.AddDocuments(ctx, docs, 2); err != nil {
		return fmt.Errorf("indexing documents: %w", err)
	}
	return nil
}

// InvalidateCache recreates the collection, dropping all indexed documents.
func (p *ChromemProvider) InvalidateCache(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.DeleteCollection(p.cfg.Collection); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	collection, err := p.db.GetOrCreateCollection(p.cfg.Collection, nil, p.embed)
	if err != nil {
		return fmt.Errorf("recreating collection: %w", err)
	}
	p.collection = collection
	return nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
