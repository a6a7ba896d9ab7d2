package domain

// Health bounds enforced by the store on every write.
const (
	MinHealth = 0.0
	MaxHealth = 100.0
)

// HealthStatus is the three-tier classification of a health score.
type HealthStatus string

// Health statuses.
const (
	HealthStatusHealthy  HealthStatus = "Healthy"
	HealthStatusDegraded HealthStatus = "Degraded"
	HealthStatusCritical HealthStatus = "Critical"
)

// Health thresholds shared by platform and service status.
const (
	HealthyThreshold  = 90.0
	DegradedThreshold = 80.0
)

// StatusForHealth classifies a health score: Healthy above 90,
// Degraded above 80, Critical otherwise.
func StatusForHealth(score float64) HealthStatus {
	switch {
	case score > HealthyThreshold:
		return HealthStatusHealthy
	case score > DegradedThreshold:
		return HealthStatusDegraded
	default:
		return HealthStatusCritical
	}
}

// ClampHealth bounds a health value to [MinHealth, MaxHealth].
func ClampHealth(h float64) float64 {
	if h < MinHealth {
		return MinHealth
	}
	if h > MaxHealth {
		return MaxHealth
	}
	return h
}

// Service represents a monitored backend service.
type Service struct {
	Name      string  `json:"name"`
	Tier      int     `json:"tier"`
	Health    float64 `json:"health"`
	LatencyMS int     `json:"latency_ms"`
	ErrorRate float64 `json:"error_rate"`
}
