package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/catalog"
	"github.com/loomlabs/loomd/internal/dryrun"
	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/policy"
	"github.com/loomlabs/loomd/internal/workflow"
)

type scriptedLLM struct {
	llm.Client
	response string
	err      error
}

func (s *scriptedLLM) Generate(context.Context, string, ...llm.Option) (string, error) {
	return s.response, s.err
}

func (s *scriptedLLM) IsAvailable() bool { return true }

type scriptedRunner struct {
	result *dryrun.Result
	err    error
}

func (s *scriptedRunner) Submit(context.Context, *workflow.Draft) (*dryrun.Result, error) {
	return s.result, s.err
}

func newTestGateway(t *testing.T, opts ...func(*Gateway)) *Gateway {
	t.Helper()

	cat, err := catalog.New(catalog.Config{})
	require.NoError(t, err)

	g := NewGateway(
		policy.New(policy.Config{}),
		cat,
		llm.Disabled(),
		dryrun.NewLocalRunner(zap.NewNop()),
		Config{},
		zap.NewNop(),
	)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func validDraft() *workflow.Draft {
	return &workflow.Draft{
		Name: "webhook to slack",
		Nodes: []workflow.Node{
			{Name: "Webhook", Type: "n8n-nodes-base.webhook", Parameters: map[string]any{"path": "incoming"}},
			{
				Name: "Slack", Type: "n8n-nodes-base.slack",
				Parameters:  map[string]any{"channel": "#alerts", "text": "hi"},
				Credentials: map[string]string{"slackApi": "{{SLACK_API_CREDENTIAL}}"},
			},
		},
		Connections: workflow.Connections{
			"Webhook": {"main": {{Node: "Slack", Type: "main", Index: 0}}},
		},
	}
}

func TestGateway_ValidDraftPassesAllRunnableLayers(t *testing.T) {
	g := newTestGateway(t)

	result := g.Validate(context.Background(), validDraft(), "notify slack on webhook")
	assert.True(t, result.Valid)
	assert.Nil(t, result.FailedLayer)
	assert.Equal(t, []Layer{
		LayerPolicy, LayerSchema, LayerExistence, LayerConnections,
		LayerCredentials, LayerDryRun,
	}, result.PassedLayers)
	assert.Equal(t, []Layer{LayerSemantic}, result.SkippedLayers)
}

func TestGateway_PolicyIsAuthoritative(t *testing.T) {
	g := newTestGateway(t)

	draft := validDraft()
	draft.Nodes = append(draft.Nodes, workflow.Node{
		Name: "Custom", Type: "community.customNode",
	})

	result := g.Validate(context.Background(), draft, "")
	assert.False(t, result.Valid)
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerPolicy, *result.FailedLayer)
	assert.Empty(t, result.PassedLayers)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeBlockedType, result.Errors[0].Code)
	assert.Equal(t, []string{"community.customNode"}, result.Errors[0].BlockedTypes)
	assert.Equal(t, []string{"n8n-nodes-base.code"}, result.Errors[0].Alternatives["community.customNode"])
}

func TestGateway_FailFastStopsAtFirstFailure(t *testing.T) {
	g := newTestGateway(t)

	// Missing name fails schema; the unknown type after it must never be
	// reported because existence does not run.
	draft := validDraft()
	draft.Name = ""
	draft.Nodes[0].Type = "n8n-nodes-base.doesNotExist"

	result := g.Validate(context.Background(), draft, "")
	assert.False(t, result.Valid)
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerSchema, *result.FailedLayer)
	assert.Equal(t, []Layer{LayerPolicy}, result.PassedLayers)
	for _, e := range result.Errors {
		assert.Equal(t, LayerSchema, e.Layer)
	}
}

func TestGateway_SchemaRejectsDuplicateNodeNames(t *testing.T) {
	g := newTestGateway(t)

	draft := validDraft()
	draft.Nodes = append(draft.Nodes, draft.Nodes[1])

	result := g.Validate(context.Background(), draft, "")
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerSchema, *result.FailedLayer)
	assert.Equal(t, CodeDuplicateNode, result.Errors[0].Code)
}

func TestGateway_ExistenceRejectsUnknownType(t *testing.T) {
	g := newTestGateway(t)

	draft := validDraft()
	draft.Nodes[1].Type = "n8n-nodes-base.doesNotExist"

	result := g.Validate(context.Background(), draft, "")
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerExistence, *result.FailedLayer)
	assert.Equal(t, CodeUnknownType, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Message, "doesNotExist")
}

func TestGateway_ConnectionsRejectDanglingEdge(t *testing.T) {
	g := newTestGateway(t)

	draft := validDraft()
	draft.Connections["Webhook"]["main"] = append(draft.Connections["Webhook"]["main"],
		workflow.Connection{Node: "Ghost", Type: "main"})

	result := g.Validate(context.Background(), draft, "")
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerConnections, *result.FailedLayer)
	assert.Equal(t, CodeDanglingEdge, result.Errors[0].Code)
}

func TestGateway_ConnectionsRejectCycle(t *testing.T) {
	g := newTestGateway(t)

	draft := validDraft()
	draft.Connections["Slack"] = map[string][]workflow.Connection{
		"main": {{Node: "Webhook", Type: "main"}},
	}

	result := g.Validate(context.Background(), draft, "")
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerConnections, *result.FailedLayer)
	assert.Equal(t, CodeCycleDetected, result.Errors[0].Code)
}

func TestGateway_CyclesAllowedWhenDisabled(t *testing.T) {
	g := newTestGateway(t, func(g *Gateway) { g.cfg.AllowCycles = true })

	draft := validDraft()
	draft.Connections["Slack"] = map[string][]workflow.Connection{
		"main": {{Node: "Webhook", Type: "main"}},
	}

	result := g.Validate(context.Background(), draft, "")
	assert.True(t, result.Valid)
}

func TestGateway_CredentialsRequired(t *testing.T) {
	g := newTestGateway(t)

	draft := validDraft()
	draft.Nodes[1].Credentials = nil

	result := g.Validate(context.Background(), draft, "")
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerCredentials, *result.FailedLayer)
	assert.Equal(t, CodeMissingCredential, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Message, "slackApi")
}

func TestGateway_SemanticSkippedWithoutLLM(t *testing.T) {
	g := newTestGateway(t)

	result := g.Validate(context.Background(), validDraft(), "")
	assert.True(t, result.Valid)
	assert.Contains(t, result.SkippedLayers, LayerSemantic)
	assert.NotContains(t, result.PassedLayers, LayerSemantic)
}

func TestGateway_SemanticHighConfidenceIssueFails(t *testing.T) {
	g := newTestGateway(t, func(g *Gateway) {
		g.llm = &scriptedLLM{response: `{"issues": [{"message": "the slack node runs before the webhook fires", "confidence": 0.95}]}`}
	})

	result := g.Validate(context.Background(), validDraft(), "notify slack on webhook")
	assert.False(t, result.Valid)
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerSemantic, *result.FailedLayer)
	assert.Equal(t, CodeSemanticIssue, result.Errors[0].Code)
}

func TestGateway_SemanticLowConfidenceBecomesWarning(t *testing.T) {
	g := newTestGateway(t, func(g *Gateway) {
		g.llm = &scriptedLLM{response: `{"issues": [{"message": "channel name may be wrong", "confidence": 0.4}]}`}
	})

	result := g.Validate(context.Background(), validDraft(), "notify slack on webhook")
	assert.True(t, result.Valid)
	assert.Contains(t, result.PassedLayers, LayerSemantic)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "channel name")
}

func TestGateway_SemanticCallFailureSkipsLayer(t *testing.T) {
	g := newTestGateway(t, func(g *Gateway) {
		g.llm = &scriptedLLM{err: context.DeadlineExceeded}
	})

	result := g.Validate(context.Background(), validDraft(), "notify slack on webhook")
	assert.True(t, result.Valid)
	assert.Contains(t, result.SkippedLayers, LayerSemantic)
	assert.NotEmpty(t, result.Warnings)
}

func TestGateway_SemanticParsesFencedResponse(t *testing.T) {
	g := newTestGateway(t, func(g *Gateway) {
		g.llm = &scriptedLLM{response: "```json\n{\"issues\": []}\n```"}
	})

	result := g.Validate(context.Background(), validDraft(), "notify slack on webhook")
	assert.True(t, result.Valid)
	assert.Contains(t, result.PassedLayers, LayerSemantic)
}

func TestGateway_DryRunRejectionIsFatal(t *testing.T) {
	g := newTestGateway(t, func(g *Gateway) {
		g.dryrun = &scriptedRunner{result: &dryrun.Result{
			Accepted:    false,
			Diagnostics: []string{"webhook path collides with an existing workflow"},
		}}
	})

	result := g.Validate(context.Background(), validDraft(), "")
	assert.False(t, result.Valid)
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerDryRun, *result.FailedLayer)
	assert.Equal(t, CodePlatformRejected, result.Errors[0].Code)
}

func TestGateway_DryRunUnreachableIsFatal(t *testing.T) {
	g := newTestGateway(t, func(g *Gateway) {
		g.dryrun = &scriptedRunner{err: dryrun.ErrUnreachable}
	})

	result := g.Validate(context.Background(), validDraft(), "")
	assert.False(t, result.Valid)
	require.NotNil(t, result.FailedLayer)
	assert.Equal(t, LayerDryRun, *result.FailedLayer)
	assert.Equal(t, CodeDryRunUnreachable, result.Errors[0].Code)
}

func TestGateway_PassedLayersArePrefixOfOrder(t *testing.T) {
	g := newTestGateway(t, func(g *Gateway) {
		g.dryrun = &scriptedRunner{err: dryrun.ErrUnreachable}
	})

	result := g.Validate(context.Background(), validDraft(), "")

	order := AllLayers()
	i := 0
	for _, l := range result.PassedLayers {
		for i < len(order) && order[i] != l {
			i++
		}
		require.Less(t, i, len(order), "passed layer %s out of order", l)
	}
}

func TestFindCycle(t *testing.T) {
	assert.Nil(t, findCycle(map[string][]string{"a": {"b"}, "b": {"c"}}))
	assert.NotEmpty(t, findCycle(map[string][]string{"a": {"b"}, "b": {"a"}}))
	assert.NotEmpty(t, findCycle(map[string][]string{"a": {"a"}}))
}
