package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/validation"
)

// ValidatorAgent runs the generated draft through the validation gateway.
// An invalid draft is a verdict on the task, not a stage error.
type ValidatorAgent struct {
	gateway *validation.Gateway
	logger  *zap.Logger
}

// NewValidatorAgent wires the agent's collaborators.
func NewValidatorAgent(gateway *validation.Gateway, logger *zap.Logger) *ValidatorAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidatorAgent{
		gateway: gateway,
		logger:  logger.Named("agents.validator"),
	}
}

// Name implements Agent.
func (a *ValidatorAgent) Name() string { return "validator" }

// Run implements Agent.
func (a *ValidatorAgent) Run(ctx context.Context, task *Task) error {
	if task.Draft == nil {
		return fmt.Errorf("no draft to validate")
	}
	task.Validation = a.gateway.Validate(ctx, task.Draft, task.Goal)
	a.logger.Debug("draft validated",
		zap.Bool("valid", task.Validation.Valid),
		zap.Int("errors", len(task.Validation.Errors)))
	return nil
}
