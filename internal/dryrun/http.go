package dryrun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/workflow"
)

// HTTPRunner submits drafts to the platform's acceptance endpoint. The
// endpoint reports structural/runtime acceptance without side effects.
type HTTPRunner struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPRunner creates a runner for the configured endpoint.
func NewHTTPRunner(cfg Config, logger *zap.Logger) *HTTPRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &HTTPRunner{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("dryrun.http"),
	}
}

// Submit posts the draft and decodes the platform's verdict.
func (r *HTTPRunner) Submit(ctx context.Context, draft *workflow.Draft) (*Result, error) {
	data, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("marshaling draft: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("dry-run endpoint returned %d", resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding verdict: %w", err)
	}
	return &result, nil
}
