package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/catalog"
	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/workflow"
)

// GeneratorAgent turns a goal, a pattern, and an optional graph insight into
// a concrete workflow draft.
type GeneratorAgent struct {
	llm     llm.Client
	catalog catalog.Catalog
	logger  *zap.Logger
}

// NewGeneratorAgent wires the agent's collaborators.
func NewGeneratorAgent(llmClient llm.Client, cat catalog.Catalog, logger *zap.Logger) *GeneratorAgent {
	if llmClient == nil {
		llmClient = llm.Disabled()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeneratorAgent{
		llm:     llmClient,
		catalog: cat,
		logger:  logger.Named("agents.generator"),
	}
}

// Name implements Agent.
func (a *GeneratorAgent) Name() string { return "generator" }

// Run implements Agent.
func (a *GeneratorAgent) Run(ctx context.Context, task *Task) error {
	draft, err := a.Generate(ctx, task.Goal, task.Pattern, task.Insight)
	if err != nil {
		return err
	}
	task.Draft = draft
	return nil
}

// Generate produces a draft for the goal. The model path produces richer
// parameterization; the template path expands the pattern's suggested types
// into a linear graph with placeholder credentials. Either path yields a
// draft that still has to pass the full validation gateway.
func (a *GeneratorAgent) Generate(ctx context.Context, goal string, pattern *workflow.Pattern, insight *workflow.GraphInsight) (*workflow.Draft, error) {
	if a.llm.IsAvailable() {
		if draft := a.generateWithModel(ctx, goal, pattern, insight); draft != nil {
			return draft, nil
		}
		a.logger.Debug("model generation failed, using template expansion")
	}
	return a.expandTemplate(ctx, goal, pattern)
}

func (a *GeneratorAgent) generateWithModel(ctx context.Context, goal string, pattern *workflow.Pattern, insight *workflow.GraphInsight) *workflow.Draft {
	insightJSON := "{}"
	if insight != nil {
		if data, err := json.Marshal(insight); err == nil {
			insightJSON = string(data)
		}
	}

	prompt := fmt.Sprintf(`Produce an n8n workflow as JSON for this goal.

Goal: %s
Pattern: %s (node types in order: %s)
Knowledge-graph context: %s

Rules:
- Use only the listed node types unless the goal clearly needs another built-in type.
- Node names must be unique. Connect nodes sequentially via "main" outputs.
- For credentials use placeholder names like {{SLACK_API_CREDENTIAL}}.
- Position nodes left to right, 250px apart, y=300.

Respond with JSON only:
{"name": "...", "nodes": [{"name": "...", "type": "...", "parameters": {}, "credentials": {}, "position": [250, 300]}], "connections": {"Source": {"main": [{"node": "Target", "type": "main", "index": 0}]}}}`,
		goal, pattern.Name, strings.Join(pattern.SuggestedTypes, ", "), insightJSON)

	out, err := a.llm.Generate(ctx, prompt, llm.WithTemperature(0.1), llm.WithMaxTokens(2048))
	if err != nil {
		a.logger.Debug("model generation call failed", zap.Error(err))
		return nil
	}

	var draft workflow.Draft
	if err := json.Unmarshal([]byte(extractJSON(out)), &draft); err != nil {
		a.logger.Debug("model draft unparseable", zap.Error(err))
		return nil
	}
	if draft.Name == "" || len(draft.Nodes) == 0 {
		return nil
	}
	return &draft
}

// expandTemplate builds a linear draft from the pattern's suggested types.
// Required parameters get goal-derived or placeholder values and every
// credential-requiring node gets a placeholder credential name so the draft
// survives layers 1-4.
func (a *GeneratorAgent) expandTemplate(ctx context.Context, goal string, pattern *workflow.Pattern) (*workflow.Draft, error) {
	if pattern == nil || len(pattern.SuggestedTypes) == 0 {
		return nil, workflow.ErrEmptyDraft
	}

	draft := &workflow.Draft{
		Name:        workflowName(goal, pattern),
		Connections: workflow.Connections{},
	}

	nameCounts := make(map[string]int)
	for i, nodeType := range pattern.SuggestedTypes {
		meta, err := a.catalog.Describe(ctx, nodeType)
		if err != nil {
			return nil, fmt.Errorf("expanding pattern %s: %w", pattern.Name, err)
		}

		name := meta.DisplayName
		nameCounts[name]++
		if n := nameCounts[name]; n > 1 {
			name = fmt.Sprintf("%s %d", name, n)
		}

		node := workflow.Node{
			Name:     name,
			Type:     nodeType,
			Position: [2]int{250 + 250*i, 300},
		}
		if len(meta.RequiredParameters) > 0 {
			node.Parameters = make(map[string]any, len(meta.RequiredParameters))
			for _, param := range meta.RequiredParameters {
				node.Parameters[param] = defaultParameter(param, goal)
			}
		}
		if meta.RequiresCredentials() {
			node.Credentials = map[string]string{
				meta.CredentialTypes[0]: credentialPlaceholder(meta.CredentialTypes[0]),
			}
		}
		draft.Nodes = append(draft.Nodes, node)

		if i > 0 {
			prev := draft.Nodes[i-1].Name
			draft.Connections[prev] = map[string][]workflow.Connection{
				"main": {{Node: name, Type: "main", Index: 0}},
			}
		}
	}

	return draft, nil
}

// defaultParameter picks a sensible placeholder for a required parameter.
func defaultParameter(param, goal string) any {
	switch param {
	case "path":
		return slugify(goal)
	case "channel":
		return "#general"
	case "text":
		return goal
	case "subject":
		return goal
	case "toEmail":
		return "{{RECIPIENT_EMAIL}}"
	case "url":
		return "{{TARGET_URL}}"
	case "operation":
		return "select"
	case "chatId":
		return "{{CHAT_ID}}"
	default:
		return fmt.Sprintf("{{%s}}", upperSnake(param))
	}
}

// credentialPlaceholder builds the placeholder credential name for a
// credential type, e.g. slackApi -> {{SLACK_API_CREDENTIAL}}.
func credentialPlaceholder(credentialType string) string {
	return fmt.Sprintf("{{%s_CREDENTIAL}}", upperSnake(credentialType))
}

func upperSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 48 {
		slug = strings.Trim(slug[:48], "-")
	}
	if slug == "" {
		return "workflow"
	}
	return slug
}

// workflowName derives a readable workflow name from the goal, falling back
// to the pattern name.
func workflowName(goal string, pattern *workflow.Pattern) string {
	trimmed := strings.TrimSpace(goal)
	if trimmed == "" {
		return pattern.Name
	}
	if len(trimmed) > 60 {
		trimmed = strings.TrimSpace(trimmed[:60])
	}
	return trimmed
}
