package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loomd_bus_events_published_total",
		Help: "Events published to the in-process bus, by event type.",
	}, []string{"event_type"})

	subscriberFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loomd_bus_subscriber_failures_total",
		Help: "Subscriber deliveries that errored or timed out.",
	}, []string{"event_type", "reason"})
)
