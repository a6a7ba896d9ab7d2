// Package health provides platform and service health projections.
package health

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/store"
)

// EmptyPlatformHealth is reported when there are no services.
const EmptyPlatformHealth = 100.0

// recentIncidentLimit caps incidents shown in a service detail view.
const recentIncidentLimit = 5

// Realtime jitter bounds.
const (
	jitterHealth    = 5.0
	jitterLatencyMS = 20
	jitterErrorRate = 0.1
	realtimeFloor   = 50.0
	minLatencyMS    = 10
)

// Aggregator computes health projections over the store.
type Aggregator struct {
	store store.Reader
	now   func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewAggregator creates a new health aggregator. rng drives the realtime
// jitter only; every other projection is deterministic.
func NewAggregator(reader store.Reader, rng *rand.Rand, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: reader, rng: rng, now: now}
}

// Overview summarizes platform health.
type Overview struct {
	Timestamp       time.Time           `json:"timestamp"`
	PlatformHealth  float64             `json:"platform_health"`
	Status          domain.HealthStatus `json:"status"`
	ServicesHealthy int                 `json:"services_healthy"`
	ServicesTotal   int                 `json:"services_total"`
}

// ServiceView is a service with its derived status.
type ServiceView struct {
	domain.Service
	Status domain.HealthStatus `json:"status"`
}

// Trend describes the direction of a service's health.
type Trend string

// Trends.
const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// ServiceDetail is a service with its recent incidents.
type ServiceDetail struct {
	Service         ServiceView       `json:"service"`
	RecentIncidents []domain.Incident `json:"recent_incidents"`
	IncidentCount   int               `json:"incident_count"`
	HealthTrend     Trend             `json:"health_trend"`
}

// RealtimeMetric is a jittered sample of a service's signals.
type RealtimeMetric struct {
	Service     string              `json:"service"`
	Health      float64             `json:"health"`
	LatencyMS   int                 `json:"latency_ms"`
	ErrorRate   float64             `json:"error_rate"`
	Status      domain.HealthStatus `json:"status"`
	LastUpdated time.Time           `json:"last_updated"`
}

// RealtimeAlert flags a degraded signal in a realtime sample.
type RealtimeAlert struct {
	Service  string `json:"service"`
	Alert    string `json:"alert"`
	Severity string `json:"severity"`
}

// Realtime is a point-in-time sample of all services.
type Realtime struct {
	Timestamp      time.Time        `json:"timestamp"`
	PlatformHealth float64          `json:"platform_health"`
	Metrics        []RealtimeMetric `json:"metrics"`
	Alerts         []RealtimeAlert  `json:"alerts"`
}

// PlatformHealth returns the mean service health rounded to one decimal,
// or 100.0 when there are no services.
func (a *Aggregator) PlatformHealth() float64 {
	return MeanHealth(a.store.ListServices())
}

// PlatformStatus classifies a platform health score.
func (a *Aggregator) PlatformStatus(score float64) domain.HealthStatus {
	return domain.StatusForHealth(score)
}

// ServiceStatus classifies a single service by its health.
func (a *Aggregator) ServiceStatus(svc domain.Service) domain.HealthStatus {
	return domain.StatusForHealth(svc.Health)
}

// Overview returns platform health with service counts.
func (a *Aggregator) Overview() Overview {
	services := a.store.ListServices()
	score := MeanHealth(services)

	healthy := 0
	for _, svc := range services {
		if a.ServiceStatus(svc) == domain.HealthStatusHealthy {
			healthy++
		}
	}

	return Overview{
		Timestamp:       a.now(),
		PlatformHealth:  score,
		Status:          a.PlatformStatus(score),
		ServicesHealthy: healthy,
		ServicesTotal:   len(services),
	}
}

// ListServices returns all services with their status.
func (a *Aggregator) ListServices() []ServiceView {
	services := a.store.ListServices()
	out := make([]ServiceView, 0, len(services))
	for _, svc := range services {
		out = append(out, a.view(svc))
	}
	return out
}

// GetService returns a service with its status.
func (a *Aggregator) GetService(name string) (ServiceView, error) {
	svc, err := a.store.GetService(name)
	if err != nil {
		return ServiceView{}, err
	}
	return a.view(svc), nil
}

// ServiceDetail returns a service with its most recent incidents.
func (a *Aggregator) ServiceDetail(name string) (*ServiceDetail, error) {
	svc, err := a.store.GetService(name)
	if err != nil {
		return nil, err
	}

	var related []domain.Incident
	for _, inc := range a.store.ListIncidents() {
		if inc.Service == name {
			related = append(related, inc)
		}
	}

	recent := related
	if len(recent) > recentIncidentLimit {
		recent = recent[:recentIncidentLimit]
	}
	if recent == nil {
		recent = []domain.Incident{}
	}

	return &ServiceDetail{
		Service:         a.view(svc),
		RecentIncidents: recent,
		IncidentCount:   len(related),
		HealthTrend:     trendFor(svc.Health),
	}, nil
}

// Realtime returns a jittered sample of every service. The store is not
// modified.
func (a *Aggregator) Realtime() Realtime {
	services := a.store.ListServices()
	now := a.now()

	metrics := make([]RealtimeMetric, 0, len(services))
	var total float64

	a.rngMu.Lock()
	for _, svc := range services {
		h := svc.Health + (a.rng.Float64()*2-1)*jitterHealth
		h = math.Max(realtimeFloor, math.Min(domain.MaxHealth, h))
		h = round1(h)

		latency := svc.LatencyMS + a.rng.IntN(2*jitterLatencyMS+1) - jitterLatencyMS
		latency = max(minLatencyMS, latency)

		errRate := svc.ErrorRate + (a.rng.Float64()*2-1)*jitterErrorRate
		errRate = math.Round(math.Max(0, errRate)*1000) / 1000

		metrics = append(metrics, RealtimeMetric{
			Service:     svc.Name,
			Health:      h,
			LatencyMS:   latency,
			ErrorRate:   errRate,
			Status:      domain.StatusForHealth(h),
			LastUpdated: now,
		})
		total += h
	}
	a.rngMu.Unlock()

	overall := EmptyPlatformHealth
	if len(metrics) > 0 {
		overall = round1(total / float64(len(metrics)))
	}

	alerts := []RealtimeAlert{}
	if overall < domain.HealthyThreshold {
		if worst, ok := slowest(metrics); ok {
			alerts = append(alerts, RealtimeAlert{
				Service:  worst.Service,
				Alert:    "Latency above threshold",
				Severity: "warning",
			})
		}
	}

	return Realtime{
		Timestamp:      now,
		PlatformHealth: overall,
		Metrics:        metrics,
		Alerts:         alerts,
	}
}

// MeanHealth returns the mean health of services rounded to one decimal,
// or 100.0 for an empty list.
func MeanHealth(services []domain.Service) float64 {
	if len(services) == 0 {
		return EmptyPlatformHealth
	}
	var total float64
	for _, svc := range services {
		total += svc.Health
	}
	return round1(total / float64(len(services)))
}

func (a *Aggregator) view(svc domain.Service) ServiceView {
	return ServiceView{Service: svc, Status: a.ServiceStatus(svc)}
}

func trendFor(h float64) Trend {
	switch {
	case h > 90:
		return TrendImproving
	case h > 85:
		return TrendStable
	default:
		return TrendDeclining
	}
}

func slowest(metrics []RealtimeMetric) (RealtimeMetric, bool) {
	if len(metrics) == 0 {
		return RealtimeMetric{}, false
	}
	worst := metrics[0]
	for _, m := range metrics[1:] {
		if m.LatencyMS > worst.LatencyMS {
			worst = m
		}
	}
	return worst, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
