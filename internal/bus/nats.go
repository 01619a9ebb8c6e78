package bus

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is the NATS subject namespace events are mirrored under.
// Event types map colon-separated segments onto subject tokens, e.g.
// "pipeline:started" -> "loom.events.pipeline.started".
const SubjectPrefix = "loom.events"

// NATSMirror forwards published events onto a NATS connection so external
// observers (SSE clients, audit consumers) can tail executions. Mirroring is
// best-effort: the in-process bus remains the source of truth.
type NATSMirror struct {
	nc *nats.Conn
}

// NewNATSMirror creates a mirror over an established connection.
func NewNATSMirror(nc *nats.Conn) *NATSMirror {
	return &NATSMirror{nc: nc}
}

// Mirror publishes one event as JSON to its mapped subject.
func (m *NATSMirror) Mirror(evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return m.nc.Publish(Subject(evt.Type), data)
}

// Subject maps an event type to its mirrored NATS subject.
func Subject(eventType string) string {
	return SubjectPrefix + "." + strings.ReplaceAll(eventType, ":", ".")
}
