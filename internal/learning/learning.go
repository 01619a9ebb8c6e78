// Package learning closes the feedback loop: it subscribes to pipeline and
// validation events and accumulates outcome statistics in shared memory.
// The statistics are advisory; losing an increment under contention is
// acceptable and never affects pipeline correctness.
package learning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/bus"
	"github.com/loomlabs/loomd/internal/memory"
)

// ScopeLearning is the shared-memory scope holding outcome counters.
const ScopeLearning = "learning"

// Counter keys. Pattern and layer counters are derived per name.
const (
	KeyRunsTotal     = "runs:total"
	KeyRunsSucceeded = "runs:succeeded"
	KeyRunsFailed    = "runs:failed"
)

// PatternKey builds the counter key for one pattern outcome.
func PatternKey(pattern string, succeeded bool) string {
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	return fmt.Sprintf("pattern:%s:%s", pattern, outcome)
}

// LayerKey builds the failure counter key for one validation layer.
func LayerKey(layer string) string {
	return fmt.Sprintf("layer:%s:failures", layer)
}

// Learner accumulates pipeline outcome statistics.
type Learner struct {
	store  memory.Store
	logger *zap.Logger
}

// NewLearner creates a learner backed by the given store.
func NewLearner(store memory.Store, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{
		store:  store,
		logger: logger.Named("learning"),
	}
}

// Attach subscribes the learner to the bus. Handlers never return errors:
// a failed counter write is logged and swallowed so it cannot surface as a
// subscriber failure.
func (l *Learner) Attach(b *bus.Bus) {
	b.Subscribe("pipeline:*", l.onPipelineEvent)
	b.Subscribe("validation:*", l.onValidationEvent)
}

func (l *Learner) onPipelineEvent(ctx context.Context, e bus.Event) error {
	if e.Type != bus.EventPipelineCompleted && e.Type != bus.EventPipelineFailed {
		return nil
	}
	payload, ok := e.Payload.(bus.PipelineTerminalPayload)
	if !ok {
		return nil
	}

	l.incr(ctx, KeyRunsTotal)
	if payload.Success {
		l.incr(ctx, KeyRunsSucceeded)
	} else {
		l.incr(ctx, KeyRunsFailed)
	}
	if payload.PatternName != "" {
		l.incr(ctx, PatternKey(payload.PatternName, payload.Success))
	}
	return nil
}

func (l *Learner) onValidationEvent(ctx context.Context, e bus.Event) error {
	if e.Type != bus.EventValidationFailed {
		return nil
	}
	payload, ok := e.Payload.(bus.ValidationPayload)
	if !ok {
		return nil
	}
	if payload.FailedLayer != "" {
		l.incr(ctx, LayerKey(payload.FailedLayer))
	}
	return nil
}

func (l *Learner) incr(ctx context.Context, key string) {
	if _, err := memory.Incr(ctx, l.store, ScopeLearning, key, 1); err != nil {
		l.logger.Warn("counter update failed", zap.String("key", key), zap.Error(err))
	}
}

// Stats returns all accumulated counters.
func (l *Learner) Stats(ctx context.Context) (map[string]int64, error) {
	entries, err := l.store.List(ctx, ScopeLearning)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int64, len(entries))
	for _, entry := range entries {
		var v int64
		if err := l.store.Get(ctx, ScopeLearning, entry.Key, &v); err == nil {
			stats[entry.Key] = v
		}
	}
	return stats, nil
}
