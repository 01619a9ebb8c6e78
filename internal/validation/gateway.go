package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/catalog"
	"github.com/loomlabs/loomd/internal/dryrun"
	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/policy"
	"github.com/loomlabs/loomd/internal/workflow"
)

// Config tunes the gateway.
type Config struct {
	// SemanticErrorThreshold promotes semantic issues at or above this
	// confidence to layer failures; below it they become warnings.
	SemanticErrorThreshold float64 `koanf:"semantic_error_threshold"`

	// AllowCycles permits cyclic connection graphs in layer 3. Cycles are
	// rejected by default.
	AllowCycles bool `koanf:"allow_cycles"`

	// SemanticTimeout bounds the layer-5 language-model call.
	SemanticTimeout time.Duration `koanf:"semantic_timeout"`

	// DryRunTimeout bounds the layer-6 submission.
	DryRunTimeout time.Duration `koanf:"dry_run_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.SemanticErrorThreshold == 0 {
		c.SemanticErrorThreshold = 0.8
	}
	if c.SemanticTimeout == 0 {
		c.SemanticTimeout = 30 * time.Second
	}
	if c.DryRunTimeout == 0 {
		c.DryRunTimeout = 30 * time.Second
	}
}

// Gateway runs the seven validation layers over a draft.
type Gateway struct {
	policy  *policy.Engine
	catalog catalog.Catalog
	llm     llm.Client
	dryrun  dryrun.Runner
	cfg     Config
	logger  *zap.Logger
}

// NewGateway wires the gateway's collaborators.
func NewGateway(p *policy.Engine, cat catalog.Catalog, llmClient llm.Client, runner dryrun.Runner, cfg Config, logger *zap.Logger) *Gateway {
	if llmClient == nil {
		llmClient = llm.Disabled()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &Gateway{
		policy:  p,
		catalog: cat,
		llm:     llmClient,
		dryrun:  runner,
		cfg:     cfg,
		logger:  logger.Named("validation"),
	}
}

// layerOutcome is one layer's verdict.
type layerOutcome struct {
	errors   []Error
	warnings []string
	skipped  bool
}

// Validate runs all layers in order, stopping at the first failure. The
// goal is only consulted by the semantic layer. Validate never returns an
// error: capability failures surface as structured layer errors or skips.
func (g *Gateway) Validate(ctx context.Context, draft *workflow.Draft, goal string) *Result {
	start := time.Now()
	result := &Result{PassedLayers: []Layer{}}

	for _, layer := range AllLayers() {
		outcome := g.runLayer(ctx, layer, draft, goal)
		result.Warnings = append(result.Warnings, outcome.warnings...)

		switch {
		case len(outcome.errors) > 0:
			failed := layer
			result.FailedLayer = &failed
			result.Errors = outcome.errors
			result.Valid = false
			layerOutcomes.WithLabelValues(layer.String(), "failed").Inc()
			validateDuration.Observe(time.Since(start).Seconds())
			g.logger.Info("validation failed",
				zap.String("layer", layer.String()),
				zap.Int("errors", len(outcome.errors)))
			return result
		case outcome.skipped:
			result.SkippedLayers = append(result.SkippedLayers, layer)
			layerOutcomes.WithLabelValues(layer.String(), "skipped").Inc()
		default:
			result.PassedLayers = append(result.PassedLayers, layer)
			layerOutcomes.WithLabelValues(layer.String(), "passed").Inc()
		}
	}

	result.Valid = true
	validateDuration.Observe(time.Since(start).Seconds())
	return result
}

func (g *Gateway) runLayer(ctx context.Context, layer Layer, draft *workflow.Draft, goal string) layerOutcome {
	switch layer {
	case LayerPolicy:
		return g.checkPolicy(draft)
	case LayerSchema:
		return g.checkSchema(draft)
	case LayerExistence:
		return g.checkExistence(ctx, draft)
	case LayerConnections:
		return g.checkConnections(draft)
	case LayerCredentials:
		return g.checkCredentials(ctx, draft)
	case LayerSemantic:
		return g.checkSemantic(ctx, draft, goal)
	case LayerDryRun:
		return g.checkDryRun(ctx, draft)
	default:
		return layerOutcome{}
	}
}

// checkPolicy is layer 0: authoritative and unconditional. A draft with any
// blocked type can never validate.
func (g *Gateway) checkPolicy(draft *workflow.Draft) layerOutcome {
	types := make([]string, 0, len(draft.Nodes))
	for _, n := range draft.Nodes {
		types = append(types, n.Type)
	}

	blocked := g.policy.BlockedTypes(types)
	if len(blocked) == 0 {
		return layerOutcome{}
	}

	alternatives := make(map[string][]string, len(blocked))
	for _, t := range blocked {
		alternatives[t] = g.policy.AlternativesFor(t)
	}

	return layerOutcome{errors: []Error{{
		Layer:        LayerPolicy,
		Code:         CodeBlockedType,
		Message:      fmt.Sprintf("draft uses %d blocked building-block type(s): %s", len(blocked), strings.Join(blocked, ", ")),
		BlockedTypes: blocked,
		Alternatives: alternatives,
	}}}
}

// checkSchema is layer 1: required fields and shapes.
func (g *Gateway) checkSchema(draft *workflow.Draft) layerOutcome {
	var errs []Error

	if draft.Name == "" {
		errs = append(errs, Error{
			Layer: LayerSchema, Code: CodeMissingField,
			Message: "workflow name is required",
		})
	}
	if len(draft.Nodes) == 0 {
		errs = append(errs, Error{
			Layer: LayerSchema, Code: CodeMissingField,
			Message: "workflow must contain at least one node",
		})
	}

	seen := make(map[string]struct{}, len(draft.Nodes))
	for i, n := range draft.Nodes {
		if n.Name == "" {
			errs = append(errs, Error{
				Layer: LayerSchema, Code: CodeMissingField,
				Message: fmt.Sprintf("node %d is missing a name", i),
			})
		}
		if n.Type == "" {
			errs = append(errs, Error{
				Layer: LayerSchema, Code: CodeMissingField,
				Message: fmt.Sprintf("node %q is missing a type", n.Name),
			})
		}
		if n.Name != "" {
			if _, dup := seen[n.Name]; dup {
				errs = append(errs, Error{
					Layer: LayerSchema, Code: CodeDuplicateNode,
					Message: fmt.Sprintf("duplicate node name %q", n.Name),
				})
			}
			seen[n.Name] = struct{}{}
		}
	}

	return layerOutcome{errors: errs}
}

// checkExistence is layer 2: every type must be known to the catalog.
func (g *Gateway) checkExistence(ctx context.Context, draft *workflow.Draft) layerOutcome {
	var errs []Error
	for _, n := range draft.Nodes {
		known, err := g.catalog.Exists(ctx, n.Type)
		if err != nil {
			errs = append(errs, Error{
				Layer: LayerExistence, Code: CodeUnknownType,
				Message: fmt.Sprintf("catalog lookup for %q failed: %v", n.Type, err),
			})
			continue
		}
		if !known {
			errs = append(errs, Error{
				Layer: LayerExistence, Code: CodeUnknownType,
				Message: fmt.Sprintf("node %q uses unknown type %q", n.Name, n.Type),
			})
		}
	}
	return layerOutcome{errors: errs}
}

// checkConnections is layer 3: no dangling edges, optionally no cycles.
func (g *Gateway) checkConnections(draft *workflow.Draft) layerOutcome {
	var errs []Error

	names := make(map[string]struct{}, len(draft.Nodes))
	for _, n := range draft.Nodes {
		names[n.Name] = struct{}{}
	}

	adjacency := make(map[string][]string)
	for _, edge := range draft.Edges() {
		if _, ok := names[edge.Source]; !ok {
			errs = append(errs, Error{
				Layer: LayerConnections, Code: CodeDanglingEdge,
				Message: fmt.Sprintf("connection from unknown node %q", edge.Source),
			})
			continue
		}
		if _, ok := names[edge.Target.Node]; !ok {
			errs = append(errs, Error{
				Layer: LayerConnections, Code: CodeDanglingEdge,
				Message: fmt.Sprintf("connection %s targets unknown node %q", edge, edge.Target.Node),
			})
			continue
		}
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target.Node)
	}

	if !g.cfg.AllowCycles && len(errs) == 0 {
		if cycle := findCycle(adjacency); len(cycle) > 0 {
			errs = append(errs, Error{
				Layer: LayerConnections, Code: CodeCycleDetected,
				Message: fmt.Sprintf("connection cycle: %s", strings.Join(cycle, " -> ")),
			})
		}
	}

	return layerOutcome{errors: errs}
}

// checkCredentials is layer 4: every node whose type requires a credential
// must declare one.
func (g *Gateway) checkCredentials(ctx context.Context, draft *workflow.Draft) layerOutcome {
	var errs []Error
	for _, n := range draft.Nodes {
		meta, err := g.catalog.Describe(ctx, n.Type)
		if err != nil {
			// Existence passed, so a describe failure is a catalog fault.
			errs = append(errs, Error{
				Layer: LayerCredentials, Code: CodeMissingCredential,
				Message: fmt.Sprintf("catalog describe for %q failed: %v", n.Type, err),
			})
			continue
		}
		if meta.RequiresCredentials() && len(n.Credentials) == 0 {
			errs = append(errs, Error{
				Layer: LayerCredentials, Code: CodeMissingCredential,
				Message: fmt.Sprintf("node %q (type %s) requires a credential of type %s",
					n.Name, n.Type, strings.Join(meta.CredentialTypes, " or ")),
			})
		}
	}
	return layerOutcome{errors: errs}
}

// semanticReview is the JSON shape the model is asked to produce.
type semanticReview struct {
	Issues []struct {
		Message    string  `json:"message"`
		Confidence float64 `json:"confidence"`
	} `json:"issues"`
}

// checkSemantic is layer 5: best-effort. An unavailable or failing
// language-model capability skips the layer; it never downgrades an
// otherwise-valid draft.
func (g *Gateway) checkSemantic(ctx context.Context, draft *workflow.Draft, goal string) layerOutcome {
	if !g.llm.IsAvailable() {
		return layerOutcome{skipped: true}
	}

	draftJSON, err := json.Marshal(draft)
	if err != nil {
		return layerOutcome{skipped: true, warnings: []string{
			fmt.Sprintf("semantic check skipped: %v", err),
		}}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.SemanticTimeout)
	defer cancel()

	out, err := g.llm.Generate(callCtx, semanticPrompt(goal, string(draftJSON)),
		llm.WithTemperature(0), llm.WithMaxTokens(1024))
	if err != nil {
		g.logger.Warn("semantic check unavailable", zap.Error(err))
		return layerOutcome{skipped: true, warnings: []string{
			"semantic check skipped: language model call failed",
		}}
	}

	var review semanticReview
	if err := json.Unmarshal([]byte(extractJSON(out)), &review); err != nil {
		return layerOutcome{skipped: true, warnings: []string{
			"semantic check skipped: unparseable model response",
		}}
	}

	var outcome layerOutcome
	for _, issue := range review.Issues {
		if issue.Confidence >= g.cfg.SemanticErrorThreshold {
			outcome.errors = append(outcome.errors, Error{
				Layer: LayerSemantic, Code: CodeSemanticIssue,
				Message: issue.Message,
			})
		} else {
			outcome.warnings = append(outcome.warnings, issue.Message)
		}
	}
	return outcome
}

// checkDryRun is layer 6: the platform's own authority, always fatal on
// rejection or unreachability.
func (g *Gateway) checkDryRun(ctx context.Context, draft *workflow.Draft) layerOutcome {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.DryRunTimeout)
	defer cancel()

	verdict, err := g.dryrun.Submit(callCtx, draft)
	if err != nil {
		code := CodePlatformRejected
		if errors.Is(err, dryrun.ErrUnreachable) || errors.Is(err, context.DeadlineExceeded) {
			code = CodeDryRunUnreachable
		}
		return layerOutcome{errors: []Error{{
			Layer: LayerDryRun, Code: code,
			Message: fmt.Sprintf("dry-run submission failed: %v", err),
		}}}
	}

	if !verdict.Accepted {
		var errs []Error
		for _, d := range verdict.Diagnostics {
			errs = append(errs, Error{
				Layer: LayerDryRun, Code: CodePlatformRejected,
				Message: d,
			})
		}
		if len(errs) == 0 {
			errs = append(errs, Error{
				Layer: LayerDryRun, Code: CodePlatformRejected,
				Message: "platform rejected the draft without diagnostics",
			})
		}
		return layerOutcome{errors: errs}
	}
	return layerOutcome{}
}

func semanticPrompt(goal, draftJSON string) string {
	return fmt.Sprintf(`You review automation workflows for logical consistency with a stated goal.

Goal: %s

Workflow JSON:
%s

List logical inconsistencies between the workflow and the goal (wrong node order, missing steps, nodes unrelated to the goal). Respond with JSON only:
{"issues": [{"message": "...", "confidence": 0.0}]}
Confidence is your certainty in [0,1]. Respond {"issues": []} if the workflow matches the goal.`, goal, draftJSON)
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

// findCycle returns one cycle in the adjacency map, or nil.
func findCycle(adjacency map[string][]string) []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)
	var stack []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		state[node] = inStack
		stack = append(stack, node)
		for _, next := range adjacency[node] {
			switch state[next] {
			case inStack:
				// Slice the stack from the first occurrence of next.
				for i, n := range stack {
					if n == next {
						cycle = append(append([]string{}, stack[i:]...), next)
						return true
					}
				}
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
		return false
	}

	for node := range adjacency {
		if state[node] == unvisited && visit(node) {
			return cycle
		}
	}
	return nil
}
