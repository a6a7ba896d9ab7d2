package impact

import (
	"strings"

	"github.com/bissquit/riskengine/internal/domain"
)

// severityImpact is the business consequence attached to a severity.
type severityImpact struct {
	RevenueRisk string
	DelayDays   string
	Escalation  string
}

var severityImpacts = map[domain.Severity]severityImpact{
	domain.SeveritySEV1: {RevenueRisk: "High", DelayDays: "3-7", Escalation: "Immediate exec alert"},
	domain.SeveritySEV2: {RevenueRisk: "Medium", DelayDays: "1-3", Escalation: "Team lead review"},
	domain.SeveritySEV3: {RevenueRisk: "Low", DelayDays: "0-1", Escalation: "Standard process"},
}

var unknownSeverityImpact = severityImpact{RevenueRisk: "Unknown", DelayDays: "Unknown", Escalation: "Monitor"}

var serviceImpacts = map[string][]string{
	"auth-service":         {"User signup", "Authentication", "All programs"},
	"payment-service":      {"Checkout", "Revenue", "E-commerce programs"},
	"inventory-service":    {"Product catalog", "Order management", "Retail programs"},
	"notification-service": {"Alerts", "User engagement", "Mobile programs"},
}

var defaultServiceImpact = []string{"General platform"}

// summaryPrograms is how many affected areas the one-line summary names.
const summaryPrograms = 2

var mitigationSuggestions = []string{
	"Implement circuit breaker pattern",
	"Increase monitoring frequency",
	"Prepare rollback plan",
}

// CommunicationTemplates are short status lines per audience.
type CommunicationTemplates struct {
	Engineer  string `json:"engineer"`
	Manager   string `json:"manager"`
	Executive string `json:"executive"`
}

// DetailedImpact is the rule-based business impact of an incident.
type DetailedImpact struct {
	IncidentID               string                 `json:"incident_id"`
	BusinessImpactSummary    string                 `json:"business_impact_summary"`
	AffectedPrograms         []string               `json:"affected_programs"`
	RevenueRisk              string                 `json:"revenue_risk"`
	EstimatedDelayDays       string                 `json:"estimated_delay_days"`
	EscalationRecommendation string                 `json:"escalation_recommendation"`
	MitigationSuggestions    []string               `json:"mitigation_suggestions"`
	CommunicationTemplates   CommunicationTemplates `json:"communication_templates"`
	Source                   Source                 `json:"source"`
}

// EscalationFor returns the escalation recommendation for a severity.
func EscalationFor(severity domain.Severity) string {
	return impactForSeverity(severity).Escalation
}

func impactForSeverity(severity domain.Severity) severityImpact {
	if si, ok := severityImpacts[severity]; ok {
		return si
	}
	return unknownSeverityImpact
}

// AffectedAreas returns the business areas a service outage touches.
func AffectedAreas(service string) []string {
	areas, ok := serviceImpacts[service]
	if !ok {
		areas = defaultServiceImpact
	}
	out := make([]string, len(areas))
	copy(out, areas)
	return out
}

// TranslateDetailed maps an incident to business impact from fixed tables.
// It makes no backend call.
func TranslateDetailed(incident domain.Incident) DetailedImpact {
	si := impactForSeverity(incident.Severity)
	areas := AffectedAreas(incident.Service)

	return DetailedImpact{
		IncidentID:               incident.ID,
		BusinessImpactSummary:    incident.Service + " incident may impact " + strings.Join(areas[:min(summaryPrograms, len(areas))], ", "),
		AffectedPrograms:         areas,
		RevenueRisk:              si.RevenueRisk,
		EstimatedDelayDays:       si.DelayDays,
		EscalationRecommendation: si.Escalation,
		MitigationSuggestions:    append([]string(nil), mitigationSuggestions...),
		CommunicationTemplates: CommunicationTemplates{
			Engineer:  strings.TrimSpace("Fix " + incident.Service + " " + strings.ToLower(incident.Description)),
			Manager:   incident.Service + " degraded, working on fix",
			Executive: "Temporary " + incident.Service + " issue, no customer impact expected",
		},
		Source: SourceRules,
	}
}
