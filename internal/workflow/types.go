// Package workflow defines the domain types shared across the pipeline:
// workflow drafts, discovered patterns, and knowledge-graph insights.
package workflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for workflow draft handling.
var (
	// ErrEmptyDraft indicates a draft with no nodes.
	ErrEmptyDraft = errors.New("draft has no nodes")

	// ErrNodeNotFound indicates a connection references an unknown node.
	ErrNodeNotFound = errors.New("node not found")
)

// Node is a single building block in a workflow graph.
type Node struct {
	// Name is the unique node name within the draft.
	Name string `json:"name"`

	// Type is the building-block type identifier, e.g. "n8n-nodes-base.webhook".
	Type string `json:"type"`

	// Parameters holds type-specific configuration.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Credentials maps credential type to the credential name the node uses.
	Credentials map[string]string `json:"credentials,omitempty"`

	// Position is the [x, y] canvas position.
	Position [2]int `json:"position"`
}

// Connection is one directed, typed, indexed edge to a target node.
type Connection struct {
	// Node is the target node name.
	Node string `json:"node"`

	// Type is the connection type, almost always "main".
	Type string `json:"type"`

	// Index is the input index on the target node.
	Index int `json:"index"`
}

// Connections maps source node name -> output type -> ordered targets.
type Connections map[string]map[string][]Connection

// Draft is a candidate workflow graph. A draft is never mutated after
// creation; a failed validation yields a new draft on retry.
type Draft struct {
	Name        string      `json:"name"`
	Nodes       []Node      `json:"nodes"`
	Connections Connections `json:"connections"`
}

// Node returns the node with the given name, if present.
func (d *Draft) Node(name string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].Name == name {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// NodeNames returns all node names in draft order.
func (d *Draft) NodeNames() []string {
	names := make([]string, 0, len(d.Nodes))
	for i := range d.Nodes {
		names = append(names, d.Nodes[i].Name)
	}
	return names
}

// Edges flattens the connection map into (source, connection) pairs.
func (d *Draft) Edges() []Edge {
	var edges []Edge
	for source, outputs := range d.Connections {
		for outputType, targets := range outputs {
			for _, target := range targets {
				edges = append(edges, Edge{Source: source, OutputType: outputType, Target: target})
			}
		}
	}
	return edges
}

// Edge is a flattened connection with its source node attached.
type Edge struct {
	Source     string
	OutputType string
	Target     Connection
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", e.Source, e.OutputType, e.Target.Node)
}

// Pattern is a discovered reusable shape for a goal. Produced once by the
// pattern agent per execution and immutable thereafter.
type Pattern struct {
	// Name identifies the pattern, e.g. "webhook-to-notification".
	Name string `json:"name"`

	// Confidence is the discovery confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// SuggestedTypes is the ordered sequence of building-block types the
	// pattern expands to.
	SuggestedTypes []string `json:"suggested_types"`
}

// Entity is a single related entity returned by the knowledge graph.
type Entity struct {
	Name  string  `json:"name"`
	Kind  string  `json:"kind,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// Relationship is a typed edge between two graph entities.
type Relationship struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// GraphInsight is the result of a knowledge-graph lookup. Read-only to the
// core; caching is the graph collaborator's concern.
type GraphInsight struct {
	RelatedEntities []Entity       `json:"related_entities,omitempty"`
	Relationships   []Relationship `json:"relationships,omitempty"`
	Summary         string         `json:"summary,omitempty"`
}
