package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/memory"
	"github.com/loomlabs/loomd/internal/workflow"
)

// ScopePattern is the shared-memory scope where discovered patterns are
// recorded for cross-run reuse.
const ScopePattern = "pattern"

// patternRule maps goal keywords to a known workflow shape. Every keyword
// group must match at least once; rules are tried in declaration order and
// the first full match wins.
type patternRule struct {
	name       string
	confidence float64
	types      []string
	keywords   [][]string
}

var patternRules = []patternRule{
	{
		name:       "webhook-to-notification",
		confidence: 0.9,
		types:      []string{"n8n-nodes-base.webhook", "n8n-nodes-base.slack"},
		keywords: [][]string{
			{"webhook", "http call", "incoming request"},
			{"slack", "notify", "notification", "message", "alert"},
		},
	},
	{
		name:       "webhook-to-email",
		confidence: 0.85,
		types:      []string{"n8n-nodes-base.webhook", "n8n-nodes-base.emailSend"},
		keywords: [][]string{
			{"webhook", "incoming request"},
			{"email", "mail"},
		},
	},
	{
		name:       "scheduled-report",
		confidence: 0.85,
		types:      []string{"n8n-nodes-base.scheduleTrigger", "n8n-nodes-base.postgres", "n8n-nodes-base.emailSend"},
		keywords: [][]string{
			{"schedule", "daily", "weekly", "every", "cron"},
			{"report", "email", "summary"},
		},
	},
	{
		name:       "scheduled-fetch-to-sheet",
		confidence: 0.8,
		types:      []string{"n8n-nodes-base.scheduleTrigger", "n8n-nodes-base.httpRequest", "n8n-nodes-base.googleSheets"},
		keywords: [][]string{
			{"schedule", "daily", "every", "periodically"},
			{"fetch", "scrape", "api", "download"},
			{"sheet", "spreadsheet"},
		},
	},
	{
		name:       "database-threshold-alert",
		confidence: 0.75,
		types:      []string{"n8n-nodes-base.scheduleTrigger", "n8n-nodes-base.postgres", "n8n-nodes-base.if", "n8n-nodes-base.slack"},
		keywords: [][]string{
			{"database", "postgres", "query", "table"},
			{"alert", "slack", "notify", "threshold"},
		},
	},
	{
		name:       "scheduled-http-check",
		confidence: 0.7,
		types:      []string{"n8n-nodes-base.scheduleTrigger", "n8n-nodes-base.httpRequest", "n8n-nodes-base.if", "n8n-nodes-base.slack"},
		keywords: [][]string{
			{"monitor", "check", "uptime", "health"},
			{"url", "site", "endpoint", "service", "http"},
		},
	},
}

// fallbackPattern is used when no rule matches and the model is unavailable
// or unhelpful. A manual trigger plus a code node is always a valid start.
var fallbackPattern = workflow.Pattern{
	Name:           "custom-automation",
	Confidence:     0.3,
	SuggestedTypes: []string{"n8n-nodes-base.manualTrigger", "n8n-nodes-base.code"},
}

// PatternAgent discovers the reusable shape behind a goal.
type PatternAgent struct {
	llm    llm.Client
	store  memory.Store
	logger *zap.Logger
}

// NewPatternAgent wires the agent's collaborators.
func NewPatternAgent(llmClient llm.Client, store memory.Store, logger *zap.Logger) *PatternAgent {
	if llmClient == nil {
		llmClient = llm.Disabled()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatternAgent{
		llm:    llmClient,
		store:  store,
		logger: logger.Named("agents.pattern"),
	}
}

// Name implements Agent.
func (a *PatternAgent) Name() string { return "pattern" }

// Run implements Agent.
func (a *PatternAgent) Run(ctx context.Context, task *Task) error {
	pattern, err := a.Discover(ctx, task.Goal)
	if err != nil {
		return err
	}
	task.Pattern = pattern
	return nil
}

// Discover returns exactly one pattern for the goal. Rule matching runs
// first; when the model is available it may override the rule pick with a
// higher-confidence refinement. Discovered patterns are recorded in shared
// memory for the learning loop.
func (a *PatternAgent) Discover(ctx context.Context, goal string) (*workflow.Pattern, error) {
	pattern := matchRules(goal)

	if a.llm.IsAvailable() {
		if refined := a.refine(ctx, goal, pattern); refined != nil {
			pattern = refined
		}
	}

	a.record(ctx, pattern)
	a.logger.Debug("pattern discovered",
		zap.String("pattern", pattern.Name),
		zap.Float64("confidence", pattern.Confidence))
	return pattern, nil
}

func matchRules(goal string) *workflow.Pattern {
	lowered := strings.ToLower(goal)
	for _, rule := range patternRules {
		if rule.matches(lowered) {
			p := workflow.Pattern{
				Name:           rule.name,
				Confidence:     rule.confidence,
				SuggestedTypes: append([]string{}, rule.types...),
			}
			return &p
		}
	}
	p := fallbackPattern
	p.SuggestedTypes = append([]string{}, fallbackPattern.SuggestedTypes...)
	return &p
}

func (r patternRule) matches(loweredGoal string) bool {
	for _, group := range r.keywords {
		matched := false
		for _, kw := range group {
			if strings.Contains(loweredGoal, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// refine asks the model to confirm or replace the rule pick. Any model
// failure keeps the rule result; refinement is best-effort.
func (a *PatternAgent) refine(ctx context.Context, goal string, rulePick *workflow.Pattern) *workflow.Pattern {
	known := make([]string, 0, len(patternRules))
	for _, r := range patternRules {
		known = append(known, r.name)
	}

	out, err := a.llm.Generate(ctx, fmt.Sprintf(
		`Pick the automation pattern that best fits this goal.

Goal: %s
Known patterns: %s
Current pick: %s

Respond with JSON only: {"name": "...", "confidence": 0.0, "suggested_types": ["n8n-nodes-base...."]}
Reuse a known pattern name when one fits; invent a kebab-case name otherwise.`,
		goal, strings.Join(known, ", "), rulePick.Name),
		llm.WithTemperature(0), llm.WithMaxTokens(256))
	if err != nil {
		a.logger.Debug("pattern refinement unavailable", zap.Error(err))
		return nil
	}

	var p workflow.Pattern
	if err := json.Unmarshal([]byte(extractJSON(out)), &p); err != nil {
		return nil
	}
	if p.Name == "" || len(p.SuggestedTypes) == 0 || p.Confidence <= 0 || p.Confidence > 1 {
		return nil
	}
	return &p
}

func (a *PatternAgent) record(ctx context.Context, p *workflow.Pattern) {
	if a.store == nil {
		return
	}
	key := "pattern:" + p.Name
	if err := a.store.Set(ctx, ScopePattern, key, p, 30*24*time.Hour); err != nil {
		a.logger.Warn("recording pattern failed", zap.String("key", key), zap.Error(err))
	}
}

// extractJSON strips code fences and surrounding prose from model output.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
