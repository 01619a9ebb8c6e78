// Package catalog provides the building-block catalog capability: existence
// and property lookups for node types, backing validation layers 2-4.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// ErrUnknownType is returned by Describe for types not in the catalog.
var ErrUnknownType = errors.New("unknown building-block type")

// Metadata describes one building-block type.
type Metadata struct {
	// Type is the full type identifier.
	Type string `koanf:"type" json:"type"`

	// DisplayName is the human-readable node name.
	DisplayName string `koanf:"display_name" json:"display_name"`

	// IsTrigger marks types that start a workflow.
	IsTrigger bool `koanf:"is_trigger" json:"is_trigger"`

	// RequiredParameters must be present in a node's parameters.
	RequiredParameters []string `koanf:"required_parameters" json:"required_parameters,omitempty"`

	// CredentialTypes lists the credential types the node accepts. A node
	// with a non-empty list must declare at least one credential.
	CredentialTypes []string `koanf:"credential_types" json:"credential_types,omitempty"`
}

// RequiresCredentials reports whether nodes of this type must declare a
// credential.
func (m *Metadata) RequiresCredentials() bool {
	return len(m.CredentialTypes) > 0
}

// Catalog is the building-block catalog capability contract.
type Catalog interface {
	// Exists reports whether a type identifier is known.
	Exists(ctx context.Context, typeIdentifier string) (bool, error)

	// Describe returns metadata for a known type, or ErrUnknownType.
	Describe(ctx context.Context, typeIdentifier string) (*Metadata, error)
}

// Config holds catalog configuration.
type Config struct {
	// Path is an optional YAML file whose entries extend or override the
	// built-in seed. Format: {"types": [Metadata, ...]}.
	Path string `koanf:"path"`
}

// StaticCatalog serves lookups from an in-process map built from the seed
// set plus an optional YAML overlay. Lookups never touch the network.
type StaticCatalog struct {
	types map[string]Metadata
}

// New builds the catalog from the built-in seed and the optional overlay.
func New(cfg Config) (*StaticCatalog, error) {
	types := make(map[string]Metadata, len(builtinSeed))
	for _, m := range builtinSeed {
		types[m.Type] = m
	}

	if cfg.Path != "" {
		overlay, err := loadOverlay(cfg.Path)
		if err != nil {
			return nil, err
		}
		for _, m := range overlay {
			types[m.Type] = m
		}
	}

	return &StaticCatalog{types: types}, nil
}

func loadOverlay(path string) ([]Metadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing catalog file %s: %w", path, err)
	}

	var doc struct {
		Types []Metadata `koanf:"types"`
	}
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling catalog file %s: %w", path, err)
	}

	for i := range doc.Types {
		if doc.Types[i].Type == "" {
			return nil, fmt.Errorf("catalog file %s: entry %d missing type", path, i)
		}
	}
	return doc.Types, nil
}

// Exists reports whether a type identifier is known.
func (c *StaticCatalog) Exists(ctx context.Context, typeIdentifier string) (bool, error) {
	_, ok := c.types[typeIdentifier]
	return ok, nil
}

// Describe returns metadata for a known type.
func (c *StaticCatalog) Describe(ctx context.Context, typeIdentifier string) (*Metadata, error) {
	m, ok := c.types[typeIdentifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeIdentifier)
	}
	return &m, nil
}

// Types returns all known type identifiers. Used by the graph index seeding.
func (c *StaticCatalog) Types() []Metadata {
	out := make([]Metadata, 0, len(c.types))
	for _, m := range c.types {
		out = append(out, m)
	}
	return out
}
