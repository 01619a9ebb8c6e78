// Package memory provides the durable, agent-scoped key/value store used to
// pass context between pipeline stages and accumulate cross-run statistics.
//
// Entries carry an optional expiry honored lazily: an expired entry is
// treated as absent on read even if not physically purged. Concurrent
// writers to the same (scope, key) resolve last-writer-wins.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a key is absent or expired.
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid memory configuration")
)

// Entry is one stored value with its envelope metadata.
type Entry struct {
	AgentScope string          `json:"agent_scope"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	WrittenAt  time.Time       `json:"written_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Store is the shared-memory contract. Implementations must be safe for
// concurrent use by multiple in-flight pipeline executions.
type Store interface {
	// Set writes a value under (agentScope, key). A ttl of zero means the
	// entry never expires.
	Set(ctx context.Context, agentScope, key string, value any, ttl time.Duration) error

	// Get reads the value under (agentScope, key) into out. Returns
	// ErrNotFound for absent or expired entries.
	Get(ctx context.Context, agentScope, key string, out any) error

	// List returns all live entries for a scope.
	List(ctx context.Context, agentScope string) ([]Entry, error)

	// Close releases store resources.
	Close() error
}

// Incr atomically-enough increments an int64 counter under (scope, key).
// Lost updates under heavy write contention are acceptable per the
// last-writer-wins contract; learning counters are advisory statistics.
func Incr(ctx context.Context, s Store, agentScope, key string, delta int64) (int64, error) {
	var current int64
	err := s.Get(ctx, agentScope, key, &current)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	next := current + delta
	if err := s.Set(ctx, agentScope, key, next, 0); err != nil {
		return 0, err
	}
	return next, nil
}
