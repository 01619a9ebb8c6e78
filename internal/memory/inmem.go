package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// InMemStore is the embedded store implementation. It is the default for
// tests and single-shot CLI runs; the JetStream KV provider covers
// durability across daemon restarts.
type InMemStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewInMemStore creates an empty in-memory store.
func NewInMemStore() *InMemStore {
	return &InMemStore{entries: make(map[string]Entry)}
}

func scopedKey(agentScope, key string) string {
	return agentScope + "\x00" + key
}

// Set writes a value under (agentScope, key).
func (s *InMemStore) Set(ctx context.Context, agentScope, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling value for %s/%s: %w", agentScope, key, err)
	}

	entry := Entry{
		AgentScope: agentScope,
		Key:        key,
		Value:      raw,
		WrittenAt:  timeNow(),
	}
	if ttl > 0 {
		expires := entry.WrittenAt.Add(ttl)
		entry.ExpiresAt = &expires
	}

	s.mu.Lock()
	s.entries[scopedKey(agentScope, key)] = entry
	s.mu.Unlock()
	return nil
}

// Get reads a value, honoring expiry lazily. Expired entries are purged on
// the read path rather than by a background sweeper.
func (s *InMemStore) Get(ctx context.Context, agentScope, key string, out any) error {
	sk := scopedKey(agentScope, key)

	s.mu.RLock()
	entry, ok := s.entries[sk]
	s.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if entry.Expired(timeNow()) {
		s.mu.Lock()
		// Re-check under the write lock; a fresh write may have replaced it.
		if current, still := s.entries[sk]; still && current.Expired(timeNow()) {
			delete(s.entries, sk)
		}
		s.mu.Unlock()
		return ErrNotFound
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return fmt.Errorf("unmarshaling value for %s/%s: %w", agentScope, key, err)
	}
	return nil
}

// List returns live entries for a scope, sorted by key.
func (s *InMemStore) List(ctx context.Context, agentScope string) ([]Entry, error) {
	now := timeNow()

	s.mu.RLock()
	entries := make([]Entry, 0)
	for _, entry := range s.entries {
		if entry.AgentScope != agentScope || entry.Expired(now) {
			continue
		}
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemStore) Close() error { return nil }
