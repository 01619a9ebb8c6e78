package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/agents"
	"github.com/loomlabs/loomd/internal/bus"
	"github.com/loomlabs/loomd/internal/catalog"
	"github.com/loomlabs/loomd/internal/dryrun"
	"github.com/loomlabs/loomd/internal/graph"
	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/memory"
	"github.com/loomlabs/loomd/internal/policy"
	"github.com/loomlabs/loomd/internal/validation"
	"github.com/loomlabs/loomd/internal/workflow"
)

type stubGraph struct {
	insight *workflow.GraphInsight
	err     error
	panics  bool
}

func (s *stubGraph) Query(context.Context, string) (*workflow.GraphInsight, error) {
	if s.panics {
		panic("graph exploded")
	}
	if s.insight == nil && s.err == nil {
		return &workflow.GraphInsight{}, nil
	}
	return s.insight, s.err
}

func (s *stubGraph) ApplyUpdate(context.Context, graph.Update) error { return nil }
func (s *stubGraph) InvalidateCache(context.Context) error           { return nil }

type emptyCatalog struct{}

func (emptyCatalog) Exists(context.Context, string) (bool, error) { return false, nil }
func (emptyCatalog) Describe(ctx context.Context, t string) (*catalog.Metadata, error) {
	return nil, catalog.ErrUnknownType
}

// eventRecorder captures every published event type in order.
type eventRecorder struct {
	mu    sync.Mutex
	types []string
}

func (r *eventRecorder) attach(b *bus.Bus) {
	b.Subscribe("*", func(ctx context.Context, e bus.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.types = append(r.types, e.Type)
		return nil
	})
}

func (r *eventRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.types...)
}

func newTestOrchestrator(t *testing.T, mutate func(*Options)) (*Orchestrator, *eventRecorder) {
	t.Helper()

	cat, err := catalog.New(catalog.Config{})
	require.NoError(t, err)

	b := bus.New(zap.NewNop())
	recorder := &eventRecorder{}
	recorder.attach(b)

	gateway := validation.NewGateway(
		policy.New(policy.Config{}),
		cat,
		llm.Disabled(),
		dryrun.NewLocalRunner(zap.NewNop()),
		validation.Config{},
		zap.NewNop(),
	)

	store := memory.NewInMemStore()
	opts := Options{
		Patterns:  agents.NewPatternAgent(llm.Disabled(), store, zap.NewNop()),
		Generator: agents.NewGeneratorAgent(llm.Disabled(), cat, zap.NewNop()),
		Validator: agents.NewValidatorAgent(gateway, zap.NewNop()),
		Graph:     &stubGraph{},
		Bus:       b,
		Memory:    store,
		Logger:    zap.NewNop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts), recorder
}

func TestExecute_WebhookToSlackEndToEnd(t *testing.T) {
	o, recorder := newTestOrchestrator(t, nil)

	result, err := o.Execute(context.Background(), "Send a Slack message when a webhook is received")
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, result.Status)
	assert.True(t, result.Success)
	require.NotNil(t, result.Pattern)
	assert.Equal(t, "webhook-to-notification", result.Pattern.Name)

	require.NotNil(t, result.Workflow)
	require.Len(t, result.Workflow.Nodes, 2)
	assert.Equal(t, "n8n-nodes-base.webhook", result.Workflow.Nodes[0].Type)
	assert.Equal(t, "n8n-nodes-base.slack", result.Workflow.Nodes[1].Type)

	require.NotNil(t, result.Validation)
	assert.True(t, result.Validation.Valid)

	assert.Equal(t, []string{
		bus.EventPipelineStarted,
		bus.EventPatternDiscovered,
		bus.EventPatternGraphQueried,
		bus.EventWorkflowGenerated,
		bus.EventValidationCompleted,
		bus.EventPipelineCompleted,
	}, recorder.recorded())
}

func TestExecute_EmptyGoalRejected(t *testing.T) {
	o, recorder := newTestOrchestrator(t, nil)

	_, err := o.Execute(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyGoal)
	assert.Empty(t, recorder.recorded())
}

func TestExecute_GenerationFailureEndsWithPipelineFailed(t *testing.T) {
	o, recorder := newTestOrchestrator(t, func(opts *Options) {
		opts.Generator = agents.NewGeneratorAgent(llm.Disabled(), emptyCatalog{}, zap.NewNop())
	})

	result, err := o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, result.Success)
	assert.Equal(t, StageWorkflowGeneration, result.FailedStage)
	assert.NotEmpty(t, result.Errors)

	events := recorder.recorded()
	require.NotEmpty(t, events)
	assert.Equal(t, bus.EventPipelineFailed, events[len(events)-1])
	assert.NotContains(t, events, bus.EventWorkflowGenerated)
}

func TestExecute_StagePanicIsContained(t *testing.T) {
	o, recorder := newTestOrchestrator(t, func(opts *Options) {
		opts.Graph = &stubGraph{panics: true}
	})

	result, err := o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, StageGraphQuery, result.FailedStage)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "panicked")

	events := recorder.recorded()
	assert.Equal(t, bus.EventPipelineFailed, events[len(events)-1])
}

func TestExecute_GraphErrorFailsStage(t *testing.T) {
	o, recorder := newTestOrchestrator(t, func(opts *Options) {
		opts.Graph = &stubGraph{err: context.DeadlineExceeded}
	})

	result, err := o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, result.Success)
	assert.Equal(t, StageGraphQuery, result.FailedStage)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "graph query")

	events := recorder.recorded()
	require.NotEmpty(t, events)
	assert.Equal(t, bus.EventPipelineFailed, events[len(events)-1])
	assert.NotContains(t, events, bus.EventPatternGraphQueried)
	assert.NotContains(t, events, bus.EventWorkflowGenerated)
}

func TestExecute_InvalidDraftCompletesUnsuccessfully(t *testing.T) {
	o, recorder := newTestOrchestrator(t, func(opts *Options) {
		opts.Validator = agents.NewValidatorAgent(validation.NewGateway(
			policy.New(policy.Config{}),
			emptyCatalog{},
			llm.Disabled(),
			dryrun.NewLocalRunner(zap.NewNop()),
			validation.Config{},
			zap.NewNop(),
		), zap.NewNop())
	})

	result, err := o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)

	// The pipeline ran to completion; the draft just failed validation.
	assert.Equal(t, StatusSucceeded, result.Status)
	assert.False(t, result.Success)
	require.NotNil(t, result.Validation)
	assert.False(t, result.Validation.Valid)

	events := recorder.recorded()
	assert.Contains(t, events, bus.EventValidationFailed)
	assert.Equal(t, bus.EventPipelineCompleted, events[len(events)-1])
}

func TestExecute_RecordsPerStageTimings(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	result, err := o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)
	require.Len(t, result.Timings, len(AllStages()))
	for i, stage := range AllStages() {
		assert.Equal(t, stage, result.Timings[i].Stage)
	}
}

func TestStatus(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	result, err := o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)

	looked, err := o.Status(result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ID, looked.ID)

	_, err = o.Status("nope")
	assert.ErrorIs(t, err, ErrUnknownExecution)
}

func TestSystemStatus(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	status := o.SystemStatus(context.Background())
	assert.True(t, status.Initialized)
	assert.True(t, status.AgentsReady)
	assert.Equal(t, 0, status.SharedMemorySummary["pattern"])

	_, err := o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)

	status = o.SystemStatus(context.Background())
	assert.Equal(t, 1, status.SharedMemorySummary["pattern"])
}

func TestSystemStatus_MissingAgents(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(opts *Options) {
		opts.Validator = nil
	})

	status := o.SystemStatus(context.Background())
	assert.False(t, status.Initialized)
	assert.False(t, status.AgentsReady)
}

func TestHistoryLimitEvictsOldest(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(opts *Options) {
		opts.Config = Config{HistoryLimit: 2}
	})

	first, err := o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)
	_, err = o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)
	_, err = o.Execute(context.Background(), "notify slack on webhook")
	require.NoError(t, err)

	_, err = o.Status(first.ID)
	assert.ErrorIs(t, err, ErrUnknownExecution)
}
