package impact

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/health"
	"github.com/bissquit/riskengine/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// topRiskPrograms caps the programs listed in an executive summary.
const topRiskPrograms = 3

// IncidentSummary counts incidents by severity.
type IncidentSummary struct {
	Total int `json:"total"`
	SEV1  int `json:"sev1"`
	SEV2  int `json:"sev2"`
	SEV3  int `json:"sev3"`
}

// RiskProgram is a program listed in an executive summary.
type RiskProgram struct {
	Name      string           `json:"name"`
	Risk      domain.RiskLevel `json:"risk"`
	RiskScore int              `json:"risk_score"`
}

// ExecutiveSummary is a leadership view of platform health and risk.
type ExecutiveSummary struct {
	Timestamp           time.Time           `json:"timestamp"`
	PlatformHealthScore float64             `json:"platform_health_score"`
	PlatformStatus      domain.HealthStatus `json:"platform_status"`
	ServiceCount        int                 `json:"service_count"`
	IncidentSummary     IncidentSummary     `json:"incident_summary"`
	HighRiskPrograms    []RiskProgram       `json:"high_risk_programs"`
	KeyInsights         []string            `json:"key_insights"`
	Recommendations     []string            `json:"recommendations"`
}

// Narrative is an executive summary rendered as free text.
type Narrative struct {
	Text        string    `json:"text"`
	Source      Source    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ExecutiveSummary composes platform health, incident counts and program
// risk into a leadership summary.
func (t *Translator) ExecutiveSummary(ctx context.Context) ExecutiveSummary {
	services := t.store.ListServices()
	incidents := t.store.ListIncidents()
	agg := t.scorer.Programs(ctx)

	score := health.MeanHealth(services)

	var counts IncidentSummary
	counts.Total = len(incidents)
	for _, inc := range incidents {
		switch inc.Severity {
		case domain.SeveritySEV1:
			counts.SEV1++
		case domain.SeveritySEV2:
			counts.SEV2++
		case domain.SeveritySEV3:
			counts.SEV3++
		}
	}

	var highRisk []domain.ProgramRisk
	for _, r := range agg.Risks {
		if r.RiskLevel.IsHigh() {
			highRisk = append(highRisk, r)
		}
	}
	sort.SliceStable(highRisk, func(i, j int) bool {
		return highRisk[i].RiskScore > highRisk[j].RiskScore
	})

	top := make([]RiskProgram, 0, topRiskPrograms)
	for _, r := range highRisk[:min(topRiskPrograms, len(highRisk))] {
		top = append(top, RiskProgram{Name: r.ProgramName, Risk: r.RiskLevel, RiskScore: r.RiskScore})
	}

	return ExecutiveSummary{
		Timestamp:           t.now(),
		PlatformHealthScore: score,
		PlatformStatus:      domain.StatusForHealth(score),
		ServiceCount:        len(services),
		IncidentSummary:     counts,
		HighRiskPrograms:    top,
		KeyInsights:         keyInsights(score, agg.HighRiskCount, counts),
		Recommendations:     recommendations(services, incidents, agg.HighRiskCount),
	}
}

func keyInsights(score float64, highRisk int, counts IncidentSummary) []string {
	healthInsight := fmt.Sprintf("Platform health at %s%% - within target range", formatPercent(score))
	if score <= domain.HealthyThreshold {
		healthInsight = fmt.Sprintf("Platform health at %s%% - needs attention", formatPercent(score))
	}
	return []string{
		healthInsight,
		fmt.Sprintf("%d programs with high/critical risk", highRisk),
		fmt.Sprintf("%d significant incidents this month", counts.SEV1+counts.SEV2),
	}
}

func recommendations(services []domain.Service, incidents []domain.Incident, highRisk int) []string {
	out := make([]string, 0, 3)

	if weakest, ok := weakestService(services); ok {
		out = append(out, fmt.Sprintf("Review %s health (currently at %s%%)", weakest.Name, formatPercent(weakest.Health)))
	} else {
		out = append(out, "Register services to start health tracking")
	}

	if highRisk > 0 {
		out = append(out, "Schedule risk review for high-risk programs")
	} else {
		out = append(out, "Keep the regular program review cadence")
	}

	if busiest, ok := busiestService(incidents); ok {
		out = append(out, "Implement additional monitoring for "+busiest)
	} else {
		out = append(out, "Maintain current monitoring coverage")
	}

	return out
}

// weakestService returns the service with the lowest health, first in
// store order on ties.
func weakestService(services []domain.Service) (domain.Service, bool) {
	if len(services) == 0 {
		return domain.Service{}, false
	}
	weakest := services[0]
	for _, svc := range services[1:] {
		if svc.Health < weakest.Health {
			weakest = svc
		}
	}
	return weakest, true
}

// busiestService returns the service with the most incidents, by name on
// ties.
func busiestService(incidents []domain.Incident) (string, bool) {
	counts := make(map[string]int)
	for _, inc := range incidents {
		counts[inc.Service]++
	}
	best, bestCount := "", 0
	for name, n := range counts {
		if n > bestCount || (n == bestCount && name < best) {
			best, bestCount = name, n
		}
	}
	return best, bestCount > 0
}

// ExecutiveNarrative renders the executive summary as free text through the
// backend. Any failure falls back to the built-in template.
func (t *Translator) ExecutiveNarrative(ctx context.Context) Narrative {
	summary := t.ExecutiveSummary(ctx)

	callCtx := ctxlog.With(ctx, "call_id", uuid.NewString())
	text, err := t.generate(callCtx, operationNarrative, NarrativePrompt(summary))
	if err == nil {
		if text = strings.TrimSpace(text); text == "" {
			err = backendError(KindMalformed, errEmptyReply)
		}
	}
	if err == nil {
		return Narrative{Text: text, Source: SourceBackend, GeneratedAt: t.now()}
	}

	recordFallback(operationNarrative, kindOf(err))
	t.logFallback(ctx, operationNarrative, err)

	rendered, renderErr := renderNarrative(summary)
	if renderErr != nil {
		ctxlog.FromContext(ctx).Error("failed to render narrative template", "error", renderErr)
		rendered = staticNarrative(summary)
	}
	return Narrative{Text: rendered, Source: SourceFallback, GeneratedAt: t.now()}
}

// formatPercent prints a health score without trailing zeros.
func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
