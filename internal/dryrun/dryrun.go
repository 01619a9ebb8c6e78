// Package dryrun provides the read-only acceptance check a draft must pass
// before it is returned to the caller: validation layer 6 submits the draft
// here and the platform's verdict is authoritative.
package dryrun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/workflow"
)

// ErrUnreachable indicates the acceptance endpoint could not be reached.
var ErrUnreachable = errors.New("dry-run endpoint unreachable")

// Result is the platform's acceptance verdict. Submissions never mutate
// platform state.
type Result struct {
	Accepted    bool     `json:"accepted"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// Runner is the dry-run capability contract.
type Runner interface {
	Submit(ctx context.Context, draft *workflow.Draft) (*Result, error)
}

// Config selects and configures the dry-run backend.
type Config struct {
	// Endpoint is the platform's acceptance-check URL. Empty selects the
	// local runner, which applies the platform's structural rules
	// in-process.
	Endpoint string `koanf:"endpoint"`

	// Timeout bounds each submission.
	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// NewRunner creates the configured runner.
func NewRunner(cfg Config, logger *zap.Logger) Runner {
	cfg.ApplyDefaults()
	if cfg.Endpoint == "" {
		return NewLocalRunner(logger)
	}
	return NewHTTPRunner(cfg, logger)
}

// LocalRunner applies the platform's structural acceptance rules in-process.
// Used when no platform endpoint is configured (offline development, tests).
type LocalRunner struct {
	logger *zap.Logger
}

// NewLocalRunner creates the in-process runner.
func NewLocalRunner(logger *zap.Logger) *LocalRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalRunner{logger: logger.Named("dryrun.local")}
}

// Submit checks the rules the platform enforces on import: a non-empty
// graph, unique node names, and at most one unnamed-default per type.
func (r *LocalRunner) Submit(ctx context.Context, draft *workflow.Draft) (*Result, error) {
	var diagnostics []string

	if len(draft.Nodes) == 0 {
		diagnostics = append(diagnostics, "workflow has no nodes")
	}
	if draft.Name == "" {
		diagnostics = append(diagnostics, "workflow has no name")
	}

	seen := make(map[string]struct{}, len(draft.Nodes))
	for _, n := range draft.Nodes {
		if n.Name == "" {
			diagnostics = append(diagnostics, fmt.Sprintf("node of type %s has no name", n.Type))
			continue
		}
		if _, dup := seen[n.Name]; dup {
			diagnostics = append(diagnostics, fmt.Sprintf("duplicate node name %q", n.Name))
		}
		seen[n.Name] = struct{}{}
	}

	return &Result{
		Accepted:    len(diagnostics) == 0,
		Diagnostics: diagnostics,
	}, nil
}
