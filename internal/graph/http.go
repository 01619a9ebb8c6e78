package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/workflow"
)

// HTTPConfig holds configuration for the remote graph service client.
type HTTPConfig struct {
	// BaseURL is the graph service base URL.
	BaseURL string `koanf:"base_url"`

	// Timeout bounds each request.
	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *HTTPConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
}

// HTTPProvider talks to a remote/subprocess graph service over JSON HTTP.
//
// Endpoints:
//
//	POST {base}/query       {"query": "..."}  -> GraphInsight
//	POST {base}/update      Update            -> 204
//	POST {base}/invalidate                    -> 204
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPProvider creates a client for the graph service.
func NewHTTPProvider(cfg HTTPConfig, logger *zap.Logger) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base_url is required for the http provider", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &HTTPProvider{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("graph.http"),
	}, nil
}

// Query returns entities related to the text.
func (p *HTTPProvider) Query(ctx context.Context, query string) (*workflow.GraphInsight, error) {
	body, err := p.post(ctx, "/query", map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	var insight workflow.GraphInsight
	if err := json.Unmarshal(body, &insight); err != nil {
		return nil, fmt.Errorf("decoding graph response: %w", err)
	}
	return &insight, nil
}

// ApplyUpdate upserts a diff into the graph service.
func (p *HTTPProvider) ApplyUpdate(ctx context.Context, update Update) error {
	_, err := p.post(ctx, "/update", update)
	return err
}

// InvalidateCache drops the service-side cache.
func (p *HTTPProvider) InvalidateCache(ctx context.Context) error {
	_, err := p.post(ctx, "/invalidate", struct{}{})
	return err
}

func (p *HTTPProvider) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading graph response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("graph service returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
