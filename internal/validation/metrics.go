package validation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	layerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loomd",
			Subsystem: "validation",
			Name:      "layer_outcomes_total",
			Help:      "Validation layer outcomes by layer and result.",
		},
		[]string{"layer", "outcome"},
	)

	validateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "loomd",
			Subsystem: "validation",
			Name:      "duration_seconds",
			Help:      "Wall time of full gateway invocations.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
