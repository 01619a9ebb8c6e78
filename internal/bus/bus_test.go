package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublish_ExactMatch(t *testing.T) {
	b := New(zap.NewNop())

	var got []Event
	b.Subscribe(EventPipelineStarted, func(ctx context.Context, evt Event) error {
		got = append(got, evt)
		return nil
	})

	delivered := b.Publish(context.Background(), EventPipelineStarted, "payload", "test")

	assert.Equal(t, 1, delivered)
	require.Len(t, got, 1)
	assert.Equal(t, EventPipelineStarted, got[0].Type)
	assert.Equal(t, "payload", got[0].Payload)
	assert.Equal(t, "test", got[0].Source)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestPublish_WildcardPrefix(t *testing.T) {
	b := New(zap.NewNop())

	var types []string
	b.Subscribe("pattern:*", func(ctx context.Context, evt Event) error {
		types = append(types, evt.Type)
		return nil
	})

	b.Publish(context.Background(), EventPatternDiscovered, nil, "test")
	b.Publish(context.Background(), EventPatternGraphQueried, nil, "test")
	b.Publish(context.Background(), EventWorkflowGenerated, nil, "test")

	assert.Equal(t, []string{EventPatternDiscovered, EventPatternGraphQueried}, types)
}

func TestPublish_NoMatchingSubscribers(t *testing.T) {
	b := New(zap.NewNop())
	delivered := b.Publish(context.Background(), EventPipelineStarted, nil, "test")
	assert.Zero(t, delivered)
}

func TestPublish_SubscribersSeeEventsBeforeReturn(t *testing.T) {
	// Synchronous fan-out: side effects are observable immediately after
	// Publish returns.
	b := New(zap.NewNop())

	count := 0
	b.Subscribe("*", func(ctx context.Context, evt Event) error {
		count++
		return nil
	})

	b.Publish(context.Background(), EventPipelineStarted, nil, "test")
	assert.Equal(t, 1, count)
}

func TestPublish_FailingSubscriberIsIsolated(t *testing.T) {
	b := New(zap.NewNop())

	b.Subscribe("*", func(ctx context.Context, evt Event) error {
		return errors.New("boom")
	})

	var ok int
	b.Subscribe("*", func(ctx context.Context, evt Event) error {
		ok++
		return nil
	})

	delivered := b.Publish(context.Background(), EventPipelineStarted, nil, "test")

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, ok)
}

func TestPublish_PanickingSubscriberIsIsolated(t *testing.T) {
	b := New(zap.NewNop())

	b.Subscribe("*", func(ctx context.Context, evt Event) error {
		panic("subscriber bug")
	})

	var ok int
	b.Subscribe("*", func(ctx context.Context, evt Event) error {
		ok++
		return nil
	})

	assert.NotPanics(t, func() {
		b.Publish(context.Background(), EventPipelineStarted, nil, "test")
	})
	assert.Equal(t, 1, ok)
}

func TestPublish_SlowSubscriberTimesOut(t *testing.T) {
	b := New(zap.NewNop(), WithSubscriberTimeout(20*time.Millisecond))

	release := make(chan struct{})
	b.Subscribe("*", func(ctx context.Context, evt Event) error {
		<-release
		return nil
	})

	start := time.Now()
	delivered := b.Publish(context.Background(), EventPipelineStarted, nil, "test")
	close(release)

	assert.Zero(t, delivered)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPublish_DeliveryOrderPerPublisher(t *testing.T) {
	b := New(zap.NewNop())

	var mu sync.Mutex
	var seen []string
	b.Subscribe("pipeline:*", func(ctx context.Context, evt Event) error {
		mu.Lock()
		seen = append(seen, evt.Type)
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), EventPipelineStarted, nil, "test")
	b.Publish(context.Background(), EventPipelineCompleted, nil, "test")

	assert.Equal(t, []string{EventPipelineStarted, EventPipelineCompleted}, seen)
}

func TestUnsubscribe(t *testing.T) {
	b := New(zap.NewNop())

	count := 0
	sub := b.Subscribe("*", func(ctx context.Context, evt Event) error {
		count++
		return nil
	})

	b.Publish(context.Background(), EventPipelineStarted, nil, "test")
	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // idempotent
	b.Publish(context.Background(), EventPipelineStarted, nil, "test")

	assert.Equal(t, 1, count)
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"pipeline:started", "pipeline:started", true},
		{"pipeline:started", "pipeline:failed", false},
		{"pattern:*", "pattern:discovered", true},
		{"pattern:*", "pipeline:started", false},
		{"*", "anything", true},
		{"", "anything", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchPattern(tt.pattern, tt.eventType),
			"pattern=%q type=%q", tt.pattern, tt.eventType)
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "loom.events.pipeline.started", Subject(EventPipelineStarted))
	assert.Equal(t, "loom.events.validation.failed", Subject(EventValidationFailed))
}

type captureMirror struct {
	events []Event
}

func (m *captureMirror) Mirror(evt Event) error {
	m.events = append(m.events, evt)
	return nil
}

func TestPublish_MirrorsEvents(t *testing.T) {
	m := &captureMirror{}
	b := New(zap.NewNop(), WithMirror(m))

	b.Publish(context.Background(), EventPipelineStarted, nil, "test")

	require.Len(t, m.events, 1)
	assert.Equal(t, EventPipelineStarted, m.events[0].Type)
}
