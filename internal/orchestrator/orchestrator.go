package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/agents"
	"github.com/loomlabs/loomd/internal/bus"
	"github.com/loomlabs/loomd/internal/graph"
	"github.com/loomlabs/loomd/internal/learning"
	"github.com/loomlabs/loomd/internal/memory"
)

// eventSource identifies the orchestrator on published events.
const eventSource = "orchestrator"

// ErrEmptyGoal rejects executions with a blank goal before any stage runs.
var ErrEmptyGoal = errors.New("goal must not be empty")

// ErrUnknownExecution is returned by Status for IDs the orchestrator has
// never seen.
var ErrUnknownExecution = errors.New("unknown execution")

var timeNow = time.Now

// Config tunes pipeline execution.
type Config struct {
	// StageTimeout bounds each individual stage.
	StageTimeout time.Duration `koanf:"stage_timeout"`

	// HistoryLimit caps the number of retained execution results.
	HistoryLimit int `koanf:"history_limit"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.StageTimeout == 0 {
		c.StageTimeout = 2 * time.Minute
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 256
	}
}

// Orchestrator drives the four stages and publishes their boundary events.
// The agents sit at fixed pipeline positions behind the shared agents.Agent
// contract.
type Orchestrator struct {
	patterns  agents.Agent
	generator agents.Agent
	validator agents.Agent
	graph     graph.Provider
	bus       *bus.Bus
	memory    memory.Store
	cfg       Config
	logger    *zap.Logger

	mu      sync.RWMutex
	results map[string]*Result
	order   []string
}

// Options bundles the orchestrator's collaborators.
type Options struct {
	Patterns  agents.Agent
	Generator agents.Agent
	Validator agents.Agent
	Graph     graph.Provider
	Bus       *bus.Bus
	Memory    memory.Store
	Config    Config
	Logger    *zap.Logger
}

// New creates an orchestrator from its collaborators.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Config.ApplyDefaults()

	return &Orchestrator{
		patterns:  opts.Patterns,
		generator: opts.Generator,
		validator: opts.Validator,
		graph:     opts.Graph,
		bus:       opts.Bus,
		memory:    opts.Memory,
		cfg:       opts.Config,
		logger:    opts.Logger.Named("orchestrator"),
		results:   make(map[string]*Result),
	}
}

// Execute runs the full pipeline for one goal. The returned result is
// terminal: Status is never StatusRunning on return. Stage errors and panics
// are contained; Execute returns an error only for rejected input.
func (o *Orchestrator) Execute(ctx context.Context, goal string) (*Result, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, ErrEmptyGoal
	}

	result := &Result{
		ID:        uuid.NewString(),
		Goal:      goal,
		Status:    StatusRunning,
		StartedAt: timeNow(),
	}
	o.remember(result)

	o.logger.Info("pipeline started",
		zap.String("execution_id", result.ID),
		zap.String("goal", goal))
	o.publish(ctx, bus.EventPipelineStarted, bus.PipelineStartedPayload{
		ExecutionID: result.ID,
		Goal:        goal,
	})

	task := &agents.Task{ExecutionID: result.ID, Goal: goal}
	for _, stage := range AllStages() {
		start := timeNow()
		err := o.runStage(ctx, stage, result, task)
		elapsed := timeNow().Sub(start)
		result.Timings = append(result.Timings, StageTiming{Stage: stage, Duration: elapsed})
		stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())

		if err != nil {
			result.FailedStage = stage
			result.Errors = append(result.Errors, err.Error())
			o.finish(ctx, result, StatusFailed)
			return result, nil
		}
	}

	result.Success = result.Validation != nil && result.Validation.Valid
	o.finish(ctx, result, StatusSucceeded)
	return result, nil
}

// runStage dispatches one stage with a timeout and panic containment.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, result *Result, task *agents.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("stage panicked",
				zap.String("execution_id", result.ID),
				zap.String("stage", string(stage)),
				zap.Any("panic", r))
			err = fmt.Errorf("stage %s panicked: %v", stage, r)
		}
	}()

	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	switch stage {
	case StagePatternDiscovery:
		return o.discoverPattern(stageCtx, result, task)
	case StageGraphQuery:
		return o.queryGraph(stageCtx, result, task)
	case StageWorkflowGeneration:
		return o.generateWorkflow(stageCtx, result, task)
	case StageValidation:
		return o.validateWorkflow(stageCtx, result, task)
	default:
		return fmt.Errorf("unknown stage %s", stage)
	}
}

func (o *Orchestrator) discoverPattern(ctx context.Context, result *Result, task *agents.Task) error {
	if err := o.patterns.Run(ctx, task); err != nil {
		return fmt.Errorf("pattern discovery: %w", err)
	}
	result.Pattern = task.Pattern

	o.publish(ctx, bus.EventPatternDiscovered, bus.PatternDiscoveredPayload{
		ExecutionID: result.ID,
		PatternName: task.Pattern.Name,
		Confidence:  task.Pattern.Confidence,
		Types:       task.Pattern.SuggestedTypes,
	})
	return nil
}

// queryGraph enriches generation with related entities. A graph capability
// that errors or does not respond fails the stage.
func (o *Orchestrator) queryGraph(ctx context.Context, result *Result, task *agents.Task) error {
	insight, err := o.graph.Query(ctx, result.Goal)
	if err != nil {
		return fmt.Errorf("graph query: %w", err)
	}
	task.Insight = insight
	result.Insight = insight

	o.publish(ctx, bus.EventPatternGraphQueried, bus.GraphQueriedPayload{
		ExecutionID: result.ID,
		Entities:    len(insight.RelatedEntities),
		Summary:     insight.Summary,
	})
	return nil
}

func (o *Orchestrator) generateWorkflow(ctx context.Context, result *Result, task *agents.Task) error {
	if err := o.generator.Run(ctx, task); err != nil {
		return fmt.Errorf("workflow generation: %w", err)
	}
	result.Workflow = task.Draft

	o.publish(ctx, bus.EventWorkflowGenerated, bus.WorkflowGeneratedPayload{
		ExecutionID: result.ID,
		Workflow:    task.Draft.Name,
		NodeCount:   len(task.Draft.Nodes),
	})
	return nil
}

func (o *Orchestrator) validateWorkflow(ctx context.Context, result *Result, task *agents.Task) error {
	if err := o.validator.Run(ctx, task); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	verdict := task.Validation
	result.Validation = verdict

	eventType := bus.EventValidationCompleted
	if !verdict.Valid {
		eventType = bus.EventValidationFailed
	}
	o.publish(ctx, eventType, bus.ValidationPayload{
		ExecutionID:  result.ID,
		Valid:        verdict.Valid,
		FailedLayer:  verdict.FailedLayerName(),
		PassedLayers: len(verdict.PassedLayers),
		ErrorCount:   len(verdict.Errors),
	})
	return nil
}

// finish stamps the terminal state and publishes the terminal event. The
// terminal event is always the last event of an execution.
func (o *Orchestrator) finish(ctx context.Context, result *Result, status Status) {
	result.Status = status
	result.FinishedAt = timeNow()

	eventType := bus.EventPipelineCompleted
	outcome := "completed"
	if status == StatusFailed {
		eventType = bus.EventPipelineFailed
		outcome = "failed"
	} else if !result.Success {
		outcome = "invalid"
	}
	executionsTotal.WithLabelValues(outcome).Inc()

	patternName := ""
	if result.Pattern != nil {
		patternName = result.Pattern.Name
	}
	o.publish(ctx, eventType, bus.PipelineTerminalPayload{
		ExecutionID: result.ID,
		Goal:        result.Goal,
		PatternName: patternName,
		Success:     result.Success,
		FailedStage: string(result.FailedStage),
		Duration:    result.Duration(),
	})

	o.remember(result)
	o.logger.Info("pipeline finished",
		zap.String("execution_id", result.ID),
		zap.String("status", string(status)),
		zap.Bool("success", result.Success),
		zap.Duration("duration", result.Duration()))
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, payload any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, eventType, payload, eventSource)
}

// remember stores a snapshot for Status lookups, evicting the oldest entry
// past the history limit. Snapshots keep readers off the result the pipeline
// is still mutating.
func (o *Orchestrator) remember(result *Result) {
	snapshot := *result
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, known := o.results[snapshot.ID]; !known {
		o.order = append(o.order, snapshot.ID)
	}
	o.results[snapshot.ID] = &snapshot
	for len(o.order) > o.cfg.HistoryLimit {
		delete(o.results, o.order[0])
		o.order = o.order[1:]
	}
}

// SystemStatus reports daemon readiness and a per-scope summary of shared
// memory for the transport's status query.
type SystemStatus struct {
	Initialized         bool           `json:"initialized"`
	AgentsReady         bool           `json:"agentsReady"`
	SharedMemorySummary map[string]int `json:"sharedMemorySummary"`
}

// SystemStatus reports whether the pipeline is fully wired and how many live
// entries each shared-memory scope holds.
func (o *Orchestrator) SystemStatus(ctx context.Context) *SystemStatus {
	agentsReady := o.patterns != nil && o.generator != nil && o.validator != nil

	summary := make(map[string]int)
	if o.memory != nil {
		for _, scope := range []string{agents.ScopePattern, learning.ScopeLearning} {
			entries, err := o.memory.List(ctx, scope)
			if err != nil {
				o.logger.Warn("memory summary failed",
					zap.String("scope", scope),
					zap.Error(err))
				continue
			}
			summary[scope] = len(entries)
		}
	}

	return &SystemStatus{
		Initialized:         agentsReady && o.graph != nil && o.bus != nil,
		AgentsReady:         agentsReady,
		SharedMemorySummary: summary,
	}
}

// Status returns the result of a known execution.
func (o *Orchestrator) Status(id string) (*Result, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	result, ok := o.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}
	return result, nil
}
