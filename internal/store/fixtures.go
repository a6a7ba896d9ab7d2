package store

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
)

// Data is the initial content of a store.
type Data struct {
	Services     []domain.Service
	Programs     []domain.Program
	Dependencies map[string][]string // service name -> program ids
	Incidents    []domain.Incident
	Reports      []domain.Report
}

// DefaultServices returns the platform services known at startup.
func DefaultServices() []domain.Service {
	return []domain.Service{
		{Name: "auth-service", Tier: 1, Health: 95, LatencyMS: 45, ErrorRate: 0.1},
		{Name: "payment-service", Tier: 1, Health: 87, LatencyMS: 120, ErrorRate: 0.5},
		{Name: "inventory-service", Tier: 2, Health: 92, LatencyMS: 65, ErrorRate: 0.2},
		{Name: "notification-service", Tier: 3, Health: 98, LatencyMS: 30, ErrorRate: 0.05},
		{Name: "search-service", Tier: 2, Health: 89, LatencyMS: 85, ErrorRate: 0.3},
	}
}

// DefaultPrograms returns the delivery programs known at startup.
func DefaultPrograms() []domain.Program {
	return []domain.Program{
		{ID: "q4-launch", Name: "Q4 Platform Launch", Confidence: 85, Owner: "Platform TPM"},
		{ID: "ai-migration", Name: "AI Infrastructure Migration", Confidence: 72, Owner: "AI TPM"},
		{ID: "mobile-v2", Name: "Mobile App V2", Confidence: 90, Owner: "Mobile TPM"},
		{ID: "data-lake", Name: "Enterprise Data Lake", Confidence: 78, Owner: "Data TPM"},
	}
}

// DefaultDependencies returns which programs depend on which service.
func DefaultDependencies() map[string][]string {
	return map[string][]string{
		"auth-service":         {"q4-launch", "ai-migration", "mobile-v2"},
		"payment-service":      {"q4-launch"},
		"inventory-service":    {"q4-launch", "data-lake"},
		"notification-service": {"mobile-v2"},
		"search-service":       {"q4-launch", "data-lake"},
	}
}

var (
	sampleServices = []string{"auth-service", "payment-service", "inventory-service", "notification-service"}

	sampleDescriptions = []string{
		"Latency spike above threshold",
		"Increased error rates",
		"Service timeout failures",
		"Database connection pool exhausted",
		"Cache miss storm detected",
	}

	sampleImpacts = []string{
		"Checkout flow degraded",
		"User authentication delays",
		"Search functionality impacted",
		"Notifications backlogged",
	}

	sampleStatuses = []domain.IncidentStatus{
		domain.IncidentStatusResolved,
		domain.IncidentStatusInvestigating,
		domain.IncidentStatusMitigated,
	}
)

// sampleReports is the number of executive reports in demo data.
const sampleReports = 3

// Fixtures builds demo data: the default catalog, n sample incidents dated 1
// to 30 days before now and a few weekly-spaced executive reports. All
// randomness comes from rng, so the same seed always yields the same data.
func Fixtures(rng *rand.Rand, now time.Time, n int) Data {
	incidents := make([]domain.Incident, 0, n)
	for i := range n {
		daysAgo := 1 + rng.IntN(30)
		hoursAgo := 1 + rng.IntN(23)
		ts := now.Add(-time.Duration(daysAgo)*24*time.Hour - time.Duration(hoursAgo)*time.Hour)

		inc := domain.Incident{
			ID:          fmt.Sprintf("%s%d", incidentIDPrefix, incidentIDBase+i),
			Service:     pick(rng, sampleServices),
			Severity:    pick(rng, domain.Severities),
			Timestamp:   ts,
			Description: pick(rng, sampleDescriptions),
			Impact:      pick(rng, sampleImpacts),
			Status:      pick(rng, sampleStatuses),
			AssignedTo:  fmt.Sprintf("Engineer-%d", 1+rng.IntN(5)),
		}
		if inc.Status.IsResolved() {
			resolvedAt := ts.Add(time.Duration(1+rng.IntN(6)) * time.Hour)
			inc.ResolvedAt = &resolvedAt
		}
		incidents = append(incidents, inc)
	}

	return Data{
		Services:     DefaultServices(),
		Programs:     DefaultPrograms(),
		Dependencies: DefaultDependencies(),
		Incidents:    incidents,
		Reports:      fixtureReports(rng, now),
	}
}

func fixtureReports(rng *rand.Rand, now time.Time) []domain.Report {
	reports := make([]domain.Report, 0, sampleReports)
	for i := range sampleReports {
		sev1 := 1 + rng.IntN(5)
		mttr := float64(15+rng.IntN(26)) / 10

		reports = append(reports, domain.Report{
			ID:          fmt.Sprintf("%s%d", reportIDPrefix, i+1),
			Title:       fmt.Sprintf("Q%d %d Platform Health Report", 1+rng.IntN(4), now.Year()-rng.IntN(2)),
			Type:        pick(rng, domain.ReportTypes),
			GeneratedAt: now.Add(-time.Duration(i*7) * 24 * time.Hour),
			Summary:     fmt.Sprintf("Platform health remains stable with %d critical incidents this period.", sev1),
			KeyMetrics: domain.ReportMetrics{
				PlatformHealth:   float64(85 + rng.IntN(11)),
				IncidentCount:    sev1 + 2 + rng.IntN(4),
				SEV1Count:        sev1,
				HighRiskPrograms: rng.IntN(3),
				MTTRHours:        &mttr,
			},
		})
	}
	return reports
}

// NewRand returns a deterministic generator for the given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}
