// Package agents implements the three pipeline agents: pattern discovery,
// workflow generation, and validation. They share one capability contract
// (an optional language model, shared memory) but differ in stage logic; the
// orchestrator places them at fixed pipeline positions. The generative agents
// fall back to deterministic rules when the model is unavailable, so the
// pipeline produces workflows in fully offline deployments.
package agents

import (
	"context"

	"github.com/loomlabs/loomd/internal/validation"
	"github.com/loomlabs/loomd/internal/workflow"
)

// Agent is the contract shared by the pipeline agents.
type Agent interface {
	// Name identifies the agent in logs and readiness reporting.
	Name() string

	// Run executes the agent's stage: it reads the task fields earlier
	// stages produced and fills in its own. A returned error fails the
	// stage.
	Run(ctx context.Context, task *Task) error
}

// Task is the evolving state one pipeline execution threads through the
// agents.
type Task struct {
	ExecutionID string
	Goal        string

	// Pattern is written by the pattern agent.
	Pattern *workflow.Pattern

	// Insight is written by the orchestrator's graph query between the
	// pattern and generator stages.
	Insight *workflow.GraphInsight

	// Draft is written by the generator agent.
	Draft *workflow.Draft

	// Validation is written by the validator agent.
	Validation *validation.Result
}
