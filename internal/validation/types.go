// Package validation implements the layered gateway every generated draft
// must pass. Seven checks run in a fixed order with fail-fast semantics:
// policy, schema, existence, connections, credentials, semantic, dry-run.
// Layers 0-4 are cheap structural checks; 5-6 call external capabilities and
// only run once the structural layers pass.
package validation

// Layer identifies one gateway check. The numeric order is the execution
// order and is part of the public contract.
type Layer int

const (
	LayerPolicy Layer = iota
	LayerSchema
	LayerExistence
	LayerConnections
	LayerCredentials
	LayerSemantic
	LayerDryRun
)

// AllLayers returns the layers in execution order.
func AllLayers() []Layer {
	return []Layer{
		LayerPolicy, LayerSchema, LayerExistence, LayerConnections,
		LayerCredentials, LayerSemantic, LayerDryRun,
	}
}

func (l Layer) String() string {
	switch l {
	case LayerPolicy:
		return "policy"
	case LayerSchema:
		return "schema"
	case LayerExistence:
		return "existence"
	case LayerConnections:
		return "connections"
	case LayerCredentials:
		return "credentials"
	case LayerSemantic:
		return "semantic"
	case LayerDryRun:
		return "dry_run"
	default:
		return "unknown"
	}
}

// Error codes reported by the gateway.
const (
	CodeBlockedType       = "blocked_type"
	CodeMissingField      = "missing_field"
	CodeDuplicateNode     = "duplicate_node"
	CodeUnknownType       = "unknown_type"
	CodeDanglingEdge      = "dangling_edge"
	CodeCycleDetected     = "cycle_detected"
	CodeMissingCredential = "missing_credential"
	CodeSemanticIssue     = "semantic_issue"
	CodePlatformRejected  = "platform_rejected"
	CodeDryRunUnreachable = "dry_run_unreachable"
)

// Error is one structured validation failure.
type Error struct {
	// Layer that produced the error.
	Layer Layer `json:"layer"`

	// Code is a stable machine-readable identifier.
	Code string `json:"code"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// BlockedTypes lists the offending types for policy violations.
	BlockedTypes []string `json:"blocked_types,omitempty"`

	// Alternatives suggests built-in replacements per blocked type.
	Alternatives map[string][]string `json:"alternatives,omitempty"`
}

// Result is the outcome of one gateway invocation. Produced exactly once
// per call and immutable afterwards.
type Result struct {
	// Valid is true iff every layer passed or was legitimately skipped.
	Valid bool `json:"valid"`

	// PassedLayers lists the layers that ran and passed, in order.
	PassedLayers []Layer `json:"passed_layers"`

	// SkippedLayers lists layers that were legitimately skipped (only the
	// semantic layer, when the language-model capability is unavailable).
	SkippedLayers []Layer `json:"skipped_layers,omitempty"`

	// FailedLayer is set when a layer failed; no layer after it ran.
	FailedLayer *Layer `json:"failed_layer,omitempty"`

	// Errors from the failed layer.
	Errors []Error `json:"errors,omitempty"`

	// Warnings are advisory and never affect Valid.
	Warnings []string `json:"warnings,omitempty"`
}

// FailedLayerName returns the failed layer's name, or "" if none failed.
func (r *Result) FailedLayerName() string {
	if r.FailedLayer == nil {
		return ""
	}
	return r.FailedLayer.String()
}
