package incidents

import (
	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "riskengine"

var (
	incidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "created_total",
			Help:      "Total incidents created by severity",
		},
		[]string{"severity"},
	)

	incidentsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "resolved_total",
			Help:      "Total incidents moved to resolved. Repeated resolves are not counted.",
		},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "status_transitions_total",
			Help:      "Total status transitions by target status",
		},
		[]string{"to"},
	)
)

func recordCreated(severity domain.Severity) {
	incidentsCreated.WithLabelValues(string(severity)).Inc()
}

func recordResolved() {
	incidentsResolved.Inc()
	statusTransitions.WithLabelValues(string(domain.IncidentStatusResolved)).Inc()
}

func recordTransition(to domain.IncidentStatus) {
	statusTransitions.WithLabelValues(string(to)).Inc()
}

func recordServiceHealth(svc domain.Service) {
	metrics.ServiceHealth.WithLabelValues(svc.Name).Set(svc.Health)
}
