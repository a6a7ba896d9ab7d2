// Package risk derives delivery risk for programs and forecasts incident
// volume from recent history.
package risk

import (
	"context"
	"math"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/store"
)

// Risk level thresholds on the 0..100 risk score.
const (
	criticalAbove = 40
	highAbove     = 25
	mediumAbove   = 15
)

// Program detail bounds.
const (
	recentIncidentLimit     = 5
	impactPointsPerIncident = 10
	maxImpactScore          = 100
)

// Scorer computes program risk. Results are derived on every call.
type Scorer struct {
	store store.Reader
}

// NewScorer creates a new risk scorer.
func NewScorer(reader store.Reader) *Scorer {
	return &Scorer{store: reader}
}

// Aggregate is the risk view over a set of programs.
type Aggregate struct {
	Risks             []domain.ProgramRisk `json:"program_risks"`
	HighRiskCount     int                  `json:"high_risk_count"`
	OverallConfidence float64              `json:"overall_confidence"`
}

// ProgramDetail is a program with the services it depends on and their
// recent incidents.
type ProgramDetail struct {
	Program             domain.Program     `json:"program"`
	Risk                domain.ProgramRisk `json:"risk"`
	RelatedServices     []string           `json:"related_services"`
	RecentIncidents     []domain.Incident  `json:"recent_incidents"`
	ServiceDependencies int                `json:"service_dependencies"`
	IncidentImpactScore int                `json:"incident_impact_score"`
}

// LevelForScore classifies a risk score.
func LevelForScore(score int) domain.RiskLevel {
	switch {
	case score > criticalAbove:
		return domain.RiskLevelCritical
	case score > highAbove:
		return domain.RiskLevelHigh
	case score > mediumAbove:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

// ProgramRisk derives the risk of a single program.
func (s *Scorer) ProgramRisk(p domain.Program) domain.ProgramRisk {
	score := 100 - p.Confidence
	return domain.ProgramRisk{
		ProgramID:   p.ID,
		ProgramName: p.Name,
		Confidence:  p.Confidence,
		RiskScore:   score,
		RiskLevel:   LevelForScore(score),
		Owner:       p.Owner,
	}
}

// AggregateRisk derives risk for every given program. Overall confidence is
// the mean confidence rounded to one decimal, or 0 for no programs.
func (s *Scorer) AggregateRisk(programs []domain.Program) Aggregate {
	agg := Aggregate{Risks: make([]domain.ProgramRisk, 0, len(programs))}
	if len(programs) == 0 {
		return agg
	}

	total := 0
	for _, p := range programs {
		r := s.ProgramRisk(p)
		if r.RiskLevel.IsHigh() {
			agg.HighRiskCount++
		}
		agg.Risks = append(agg.Risks, r)
		total += p.Confidence
	}
	agg.OverallConfidence = math.Round(float64(total)/float64(len(programs))*10) / 10

	return agg
}

// Programs returns the aggregate risk over all programs in the store.
func (s *Scorer) Programs(_ context.Context) Aggregate {
	return s.AggregateRisk(s.store.ListPrograms())
}

// ProgramDetail returns a program with its dependency footprint.
func (s *Scorer) ProgramDetail(_ context.Context, id string) (*ProgramDetail, error) {
	program, err := s.store.GetProgram(id)
	if err != nil {
		return nil, err
	}

	services := s.store.ServicesForProgram(id)
	if services == nil {
		services = []string{}
	}
	related := make(map[string]struct{}, len(services))
	for _, name := range services {
		related[name] = struct{}{}
	}

	matched := 0
	recent := make([]domain.Incident, 0, recentIncidentLimit)
	for _, inc := range s.store.ListIncidents() {
		if _, ok := related[inc.Service]; !ok {
			continue
		}
		matched++
		if len(recent) < recentIncidentLimit {
			recent = append(recent, inc)
		}
	}

	return &ProgramDetail{
		Program:             program,
		Risk:                s.ProgramRisk(program),
		RelatedServices:     services,
		RecentIncidents:     recent,
		ServiceDependencies: len(services),
		IncidentImpactScore: min(maxImpactScore, matched*impactPointsPerIncident),
	}, nil
}
