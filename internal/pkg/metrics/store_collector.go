package metrics

import (
	"github.com/bissquit/riskengine/internal/domain"
)

// StoreSnapshot is the read side the store collector needs.
type StoreSnapshot interface {
	ListServices() []domain.Service
	ListIncidents() []domain.Incident
}

// RecordStoreMetrics updates platform and incident gauges from the store.
func RecordStoreMetrics(store StoreSnapshot) {
	services := store.ListServices()

	var total float64
	for _, svc := range services {
		ServiceHealth.WithLabelValues(svc.Name).Set(svc.Health)
		total += svc.Health
	}
	if len(services) > 0 {
		PlatformHealth.Set(total / float64(len(services)))
	} else {
		PlatformHealth.Set(domain.MaxHealth)
	}

	counts := map[domain.IncidentStatus]int{
		domain.IncidentStatusNew:           0,
		domain.IncidentStatusInvestigating: 0,
		domain.IncidentStatusMitigated:     0,
		domain.IncidentStatusResolved:      0,
	}
	for _, inc := range store.ListIncidents() {
		counts[inc.Status]++
	}
	for status, n := range counts {
		IncidentsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
