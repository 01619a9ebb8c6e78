package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig holds configuration for the JetStream KV store.
type NATSConfig struct {
	// Bucket is the JetStream KV bucket name.
	Bucket string `koanf:"bucket"`
}

// ApplyDefaults sets default values for unset fields.
func (c *NATSConfig) ApplyDefaults() {
	if c.Bucket == "" {
		c.Bucket = "loom_memory"
	}
}

// NATSStore persists entries in a JetStream key/value bucket so shared
// memory survives process restarts. Expiry stays inside the entry envelope
// and is honored lazily on read, matching the in-memory provider.
type NATSStore struct {
	kv     nats.KeyValue
	logger *zap.Logger
}

// NewNATSStore creates (or opens) the configured KV bucket.
func NewNATSStore(nc *nats.Conn, cfg NATSConfig, logger *zap.Logger) (*NATSStore, error) {
	if nc == nil {
		return nil, fmt.Errorf("%w: nats connection is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  cfg.Bucket,
			Storage: nats.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening kv bucket %s: %w", cfg.Bucket, err)
	}

	return &NATSStore{kv: kv, logger: logger.Named("memory.nats")}, nil
}

// Set writes a value under (agentScope, key).
func (s *NATSStore) Set(ctx context.Context, agentScope, key string, value any, ttl time.Duration) error {
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

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry for %s/%s: %w", agentScope, key, err)
	}

	if _, err := s.kv.Put(EncodeKey(agentScope, key), data); err != nil {
		return fmt.Errorf("writing %s/%s: %w", agentScope, key, err)
	}
	return nil
}

// Get reads a value, honoring expiry lazily.
func (s *NATSStore) Get(ctx context.Context, agentScope, key string, out any) error {
	entry, err := s.fetch(agentScope, key)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return fmt.Errorf("unmarshaling value for %s/%s: %w", agentScope, key, err)
	}
	return nil
}

func (s *NATSStore) fetch(agentScope, key string) (*Entry, error) {
	kvEntry, err := s.kv.Get(EncodeKey(agentScope, key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", agentScope, key, err)
	}

	var entry Entry
	if err := json.Unmarshal(kvEntry.Value(), &entry); err != nil {
		return nil, fmt.Errorf("decoding entry for %s/%s: %w", agentScope, key, err)
	}

	// The envelope carries the authoritative names; a mismatch means the
	// bucket holds data written under a different encoding.
	if entry.AgentScope != agentScope || entry.Key != key {
		return nil, ErrNotFound
	}

	if entry.Expired(timeNow()) {
		if err := s.kv.Delete(EncodeKey(agentScope, key)); err != nil {
			s.logger.Debug("purging expired entry failed",
				zap.String("scope", agentScope),
				zap.String("key", key),
				zap.Error(err))
		}
		return nil, ErrNotFound
	}
	return &entry, nil
}

// List returns live entries for a scope.
func (s *NATSStore) List(ctx context.Context, agentScope string) ([]Entry, error) {
	keys, err := s.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}

	prefix := encodeSegment(agentScope) + "."
	now := timeNow()

	entries := make([]Entry, 0)
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		kvEntry, err := s.kv.Get(k)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(kvEntry.Value(), &entry); err != nil {
			continue
		}
		if entry.AgentScope != agentScope || entry.Expired(now) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close is a no-op; the NATS connection is owned by the caller.
func (s *NATSStore) Close() error { return nil }

// EncodeKey maps (scope, key) onto a JetStream-safe key. Bytes outside the
// allowed set are escaped as '_' plus two hex digits, '_' itself included, so
// distinct raw keys never share a KV slot.
func EncodeKey(agentScope, key string) string {
	return encodeSegment(agentScope) + "." + encodeSegment(key)
}

const hexDigits = "0123456789abcdef"

func encodeSegment(s string) string {
	// Escaped output is always at least three bytes, so a bare "_" cannot
	// collide with any non-empty input.
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '=':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()
}
