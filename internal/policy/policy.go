// Package policy decides which building-block types may appear in generated
// workflows. Decisions are pure functions of the type identifier and the
// current policy configuration; reads are lock-free so the layer-0 check can
// run on every validation without contending with the rare reload path.
package policy

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// builtinPrefixes is the fixed set of prefixes that identify built-in types.
// A type matching one of these is always allowed, regardless of whitelist.
var builtinPrefixes = []string{
	"n8n-nodes-base.",
}

// alternatives maps blocked third-party types to suggested built-in
// replacements. Lookups for unmapped types return an empty slice.
var alternatives = map[string][]string{
	"n8n-nodes-community.slack":        {"n8n-nodes-base.slack"},
	"n8n-nodes-community.discord":      {"n8n-nodes-base.discord", "n8n-nodes-base.httpRequest"},
	"n8n-nodes-community.telegram":     {"n8n-nodes-base.telegram"},
	"n8n-nodes-community.http":         {"n8n-nodes-base.httpRequest"},
	"n8n-nodes-community.webhook":      {"n8n-nodes-base.webhook"},
	"n8n-nodes-community.email":        {"n8n-nodes-base.emailSend"},
	"n8n-nodes-community.postgres":     {"n8n-nodes-base.postgres"},
	"n8n-nodes-community.googleSheets": {"n8n-nodes-base.googleSheets"},
	"community.customNode":             {"n8n-nodes-base.code"},
	"community.scraper":                {"n8n-nodes-base.httpRequest", "n8n-nodes-base.html"},
}

// Config is the restriction policy applied to every generated draft.
type Config struct {
	// AllowThirdPartyTypes permits types outside the built-in prefixes.
	AllowThirdPartyTypes bool `koanf:"allow_third_party_types"`

	// WhitelistPrefixes narrows third-party types to the given prefixes.
	// Empty means all third-party types are allowed when
	// AllowThirdPartyTypes is true.
	WhitelistPrefixes []string `koanf:"whitelist_prefixes"`
}

// snapshot is the immutable state read on every decision.
type snapshot struct {
	allowThirdParty bool
	whitelist       []string
}

// Engine evaluates type identifiers against the current policy.
type Engine struct {
	current  atomic.Pointer[snapshot]
	reloadMu sync.Mutex
}

// New creates an engine with the given configuration.
func New(cfg Config) *Engine {
	e := &Engine{}
	e.current.Store(newSnapshot(cfg))
	return e
}

func newSnapshot(cfg Config) *snapshot {
	wl := make([]string, len(cfg.WhitelistPrefixes))
	copy(wl, cfg.WhitelistPrefixes)
	return &snapshot{
		allowThirdParty: cfg.AllowThirdPartyTypes,
		whitelist:       wl,
	}
}

// Reload replaces the policy configuration. Writers are serialized; readers
// keep using the previous snapshot until the swap completes.
func (e *Engine) Reload(cfg Config) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	e.current.Store(newSnapshot(cfg))
}

// IsAllowed reports whether a building-block type may appear in a draft.
// Built-in types are always allowed. Third-party types are allowed only when
// the policy permits them and, if a whitelist is configured, the type matches
// a whitelist prefix.
func (e *Engine) IsAllowed(typeIdentifier string) bool {
	if IsBuiltin(typeIdentifier) {
		return true
	}

	s := e.current.Load()
	if !s.allowThirdParty {
		return false
	}
	if len(s.whitelist) == 0 {
		return true
	}
	for _, prefix := range s.whitelist {
		if strings.HasPrefix(typeIdentifier, prefix) {
			return true
		}
	}
	return false
}

// AlternativesFor returns suggested built-in replacements for a blocked type.
// Unknown types yield an empty slice, never an error.
func (e *Engine) AlternativesFor(typeIdentifier string) []string {
	alts, ok := alternatives[typeIdentifier]
	if !ok {
		return []string{}
	}
	out := make([]string, len(alts))
	copy(out, alts)
	return out
}

// BlockedTypes returns the sorted set of types from the input that are not
// allowed under the current policy.
func (e *Engine) BlockedTypes(types []string) []string {
	seen := make(map[string]struct{})
	var blocked []string
	for _, t := range types {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if !e.IsAllowed(t) {
			blocked = append(blocked, t)
		}
	}
	sort.Strings(blocked)
	return blocked
}

// IsBuiltin reports whether a type matches one of the fixed built-in prefixes.
func IsBuiltin(typeIdentifier string) bool {
	for _, prefix := range builtinPrefixes {
		if strings.HasPrefix(typeIdentifier, prefix) {
			return true
		}
	}
	return false
}
