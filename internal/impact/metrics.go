package impact

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "riskengine"

var (
	backendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "Total text generation calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	backendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Text generation call latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "impact",
			Name:      "fallbacks_total",
			Help:      "Total deterministic fallbacks by backend error kind",
		},
		[]string{"operation", "kind"},
	)

	reportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "generated_total",
			Help:      "Total executive reports generated by type",
		},
		[]string{"type"},
	)
)

const outcomeSuccess = "success"

func recordBackendCall(operation string, kind BackendErrorKind, d time.Duration) {
	outcome := outcomeSuccess
	if kind != "" {
		outcome = string(kind)
	}
	backendCalls.WithLabelValues(operation, outcome).Inc()
	backendDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func recordFallback(operation string, kind BackendErrorKind) {
	fallbacks.WithLabelValues(operation, string(kind)).Inc()
}
