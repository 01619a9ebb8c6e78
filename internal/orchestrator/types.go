// Package orchestrator runs the four-stage pipeline that turns a natural
// language goal into a validated workflow draft: pattern discovery, graph
// query, workflow generation, validation. Stages run strictly in order and
// every stage boundary publishes an event on the bus.
package orchestrator

import (
	"time"

	"github.com/loomlabs/loomd/internal/validation"
	"github.com/loomlabs/loomd/internal/workflow"
)

// Stage identifies one pipeline stage.
type Stage string

const (
	StagePatternDiscovery   Stage = "pattern_discovery"
	StageGraphQuery         Stage = "graph_query"
	StageWorkflowGeneration Stage = "workflow_generation"
	StageValidation         Stage = "validation"
)

// AllStages returns the stages in execution order.
func AllStages() []Stage {
	return []Stage{
		StagePatternDiscovery, StageGraphQuery,
		StageWorkflowGeneration, StageValidation,
	}
}

// Status is the lifecycle state of one execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StageTiming records one stage's wall time.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Result is the complete outcome of one pipeline execution.
type Result struct {
	// ID is the unique execution identifier.
	ID string `json:"id"`

	// Goal is the natural-language input, verbatim.
	Goal string `json:"goal"`

	// Status is the execution lifecycle state.
	Status Status `json:"status"`

	// Success is true when the pipeline completed and the draft validated.
	Success bool `json:"success"`

	// Pattern discovered in stage 1.
	Pattern *workflow.Pattern `json:"pattern,omitempty"`

	// Insight returned by the graph query in stage 2.
	Insight *workflow.GraphInsight `json:"insight,omitempty"`

	// Workflow is the generated draft, present from stage 3 onward.
	Workflow *workflow.Draft `json:"workflow,omitempty"`

	// Validation is the gateway verdict from stage 4.
	Validation *validation.Result `json:"validation,omitempty"`

	// FailedStage is set when a stage errored.
	FailedStage Stage `json:"failed_stage,omitempty"`

	// Errors collects stage error messages.
	Errors []string `json:"errors,omitempty"`

	// Timings records per-stage wall time in execution order.
	Timings []StageTiming `json:"timings,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the total execution wall time.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
