// Package bus provides the in-process publish/subscribe channel that
// decouples the pipeline from its observers (learning, audit, SSE).
//
// Delivery semantics: subscribers matching the event type receive the event
// synchronously, in registration order, before Publish returns. A subscriber
// that returns an error, panics, or exceeds the per-subscriber timeout is
// logged and skipped; it never affects the publisher or other subscribers.
package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultSubscriberTimeout bounds how long Publish waits on one subscriber.
const DefaultSubscriberTimeout = 2 * time.Second

// Event is one observable pipeline transition. Events are never mutated
// after publication and are not persisted by the bus itself.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler consumes a single event. The context carries the per-subscriber
// timeout; handlers should respect it on any blocking work.
type Handler func(ctx context.Context, evt Event) error

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	id      uint64
	pattern string
}

// Pattern returns the type pattern this subscription matches.
func (s *Subscription) Pattern() string { return s.pattern }

type subscriber struct {
	id      uint64
	pattern string
	handler Handler
}

// Mirror receives a best-effort copy of every published event, typically to
// forward onto an external broker. Mirror failures are logged, never fatal.
type Mirror interface {
	Mirror(evt Event) error
}

// Bus is a concurrency-safe in-process event bus.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  atomic.Uint64
	timeout time.Duration
	mirror  Mirror
	logger  *zap.Logger
}

// Option configures the bus.
type Option func(*Bus)

// WithSubscriberTimeout overrides the per-subscriber delivery timeout.
func WithSubscriberTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMirror attaches a best-effort event mirror.
func WithMirror(m Mirror) Option {
	return func(b *Bus) { b.mirror = m }
}

// New creates an event bus.
func New(logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		subs:    make(map[uint64]*subscriber),
		timeout: DefaultSubscriberTimeout,
		logger:  logger.Named("bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a type pattern: either an exact event
// type ("pipeline:started") or a wildcard prefix ("pattern:*").
func (b *Bus) Subscribe(typePattern string, handler Handler) *Subscription {
	id := b.nextID.Add(1)
	sub := &subscriber{id: id, pattern: typePattern, handler: handler}

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	return &Subscription{id: id, pattern: typePattern}
}

// Unsubscribe removes a subscription. Safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
}

// Publish delivers an event to all matching subscribers and returns once
// every one has been invoked (or timed out). The returned count is the
// number of successful deliveries; publish itself only fails on a nil bus
// misuse, so pipeline code can treat it as fire-and-forget.
func (b *Bus) Publish(ctx context.Context, eventType string, payload any, source string) int {
	evt := Event{
		Type:      eventType,
		Payload:   payload,
		Source:    source,
		Timestamp: time.Now(),
	}

	matched := b.matching(eventType)
	delivered := 0
	for _, sub := range matched {
		if b.deliver(ctx, sub, evt) {
			delivered++
		}
	}

	eventsPublished.WithLabelValues(eventType).Inc()

	if b.mirror != nil {
		if err := b.mirror.Mirror(evt); err != nil {
			b.logger.Debug("event mirror failed",
				zap.String("event_type", eventType),
				zap.Error(err))
		}
	}

	return delivered
}

// matching returns subscribers whose pattern matches the type, in
// registration order so per-publisher ordering is deterministic.
func (b *Bus) matching(eventType string) []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if MatchPattern(sub.pattern, eventType) {
			matched = append(matched, sub)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })
	return matched
}

// deliver invokes one handler with timeout and panic isolation.
func (b *Bus) deliver(ctx context.Context, sub *subscriber, evt Event) bool {
	handlerCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("subscriber panic: %v", r)
			}
		}()
		done <- sub.handler(handlerCtx, evt)
	}()

	select {
	case err := <-done:
		if err != nil {
			subscriberFailures.WithLabelValues(evt.Type, "error").Inc()
			b.logger.Warn("subscriber failed",
				zap.String("event_type", evt.Type),
				zap.String("pattern", sub.pattern),
				zap.Error(err))
			return false
		}
		return true
	case <-handlerCtx.Done():
		// Timed-out subscribers are treated as failed. The goroutine is
		// left to drain; its result is discarded via the buffered channel.
		subscriberFailures.WithLabelValues(evt.Type, "timeout").Inc()
		b.logger.Warn("subscriber timed out",
			zap.String("event_type", evt.Type),
			zap.String("pattern", sub.pattern),
			zap.Duration("timeout", b.timeout))
		return false
	}
}

// MatchPattern reports whether a type pattern matches an event type.
// Patterns are exact types or wildcard prefixes ending in "*".
func MatchPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(eventType) >= len(prefix) && eventType[:len(prefix)] == prefix
	}
	return pattern == eventType
}
