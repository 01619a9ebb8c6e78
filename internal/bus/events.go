package bus

import "time"

// Event types published by the pipeline. Subscribers may match them exactly
// or via wildcard prefixes such as "pattern:*" or "pipeline:*".
const (
	EventPipelineStarted     = "pipeline:started"
	EventPipelineCompleted   = "pipeline:completed"
	EventPipelineFailed      = "pipeline:failed"
	EventPatternDiscovered   = "pattern:discovered"
	EventPatternGraphQueried = "pattern:graph_queried"
	EventWorkflowGenerated   = "workflow:generated"
	EventValidationCompleted = "validation:completed"
	EventValidationFailed    = "validation:failed"
)

// PipelineStartedPayload accompanies pipeline:started.
type PipelineStartedPayload struct {
	ExecutionID string `json:"execution_id"`
	Goal        string `json:"goal"`
}

// PatternDiscoveredPayload accompanies pattern:discovered.
type PatternDiscoveredPayload struct {
	ExecutionID string   `json:"execution_id"`
	PatternName string   `json:"pattern_name"`
	Confidence  float64  `json:"confidence"`
	Types       []string `json:"types"`
}

// GraphQueriedPayload accompanies pattern:graph_queried.
type GraphQueriedPayload struct {
	ExecutionID string `json:"execution_id"`
	Entities    int    `json:"entities"`
	Summary     string `json:"summary,omitempty"`
}

// WorkflowGeneratedPayload accompanies workflow:generated.
type WorkflowGeneratedPayload struct {
	ExecutionID string `json:"execution_id"`
	Workflow    string `json:"workflow"`
	NodeCount   int    `json:"node_count"`
}

// ValidationPayload accompanies validation:completed and validation:failed.
type ValidationPayload struct {
	ExecutionID  string `json:"execution_id"`
	Valid        bool   `json:"valid"`
	FailedLayer  string `json:"failed_layer,omitempty"`
	PassedLayers int    `json:"passed_layers"`
	ErrorCount   int    `json:"error_count"`
}

// PipelineTerminalPayload accompanies pipeline:completed and pipeline:failed.
type PipelineTerminalPayload struct {
	ExecutionID string        `json:"execution_id"`
	Goal        string        `json:"goal"`
	PatternName string        `json:"pattern_name,omitempty"`
	Success     bool          `json:"success"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Duration    time.Duration `json:"duration"`
}
