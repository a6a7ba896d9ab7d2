package impact

import (
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
)

const systemPrompt = "You are a Principal Technical Program Manager (TPM) at a FAANG company. " +
	"Your job is to analyze platform incidents and translate them into business impact. " +
	"Focus on: program delays, revenue risk, and executive communication."

// Sampling used for incident translation and executive narratives.
const (
	incidentTemperature  = 0.3
	incidentMaxTokens    = 300
	narrativeTemperature = 0.2
	narrativeMaxTokens   = 200
)

// IncidentPrompt builds the backend prompt for translating an incident.
func IncidentPrompt(incident domain.Incident) Prompt {
	var b strings.Builder
	b.WriteString("Incident Details:\n")
	fmt.Fprintf(&b, "Service: %s\n", incident.Service)
	fmt.Fprintf(&b, "Severity: %s\n", incident.Severity)
	fmt.Fprintf(&b, "Time: %s\n", incident.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Description: %s\n\n", incident.Description)
	b.WriteString("As a TPM, provide:\n")
	b.WriteString("1. Business impact summary (one sentence)\n")
	b.WriteString("2. Which programs are affected\n")
	b.WriteString("3. Estimated timeline impact\n")
	b.WriteString("4. Recommended action for leadership\n\n")
	b.WriteString("Format as JSON with these keys: summary, affected_programs, timeline_impact, recommended_action")

	return Prompt{
		System:      systemPrompt,
		User:        b.String(),
		Temperature: incidentTemperature,
		MaxTokens:   incidentMaxTokens,
	}
}

// NarrativePrompt builds the backend prompt for an executive narrative.
func NarrativePrompt(summary ExecutiveSummary) Prompt {
	var b strings.Builder
	b.WriteString("Platform Status:\n")
	fmt.Fprintf(&b, "Overall Health: %s%%\n", formatPercent(summary.PlatformHealthScore))
	fmt.Fprintf(&b, "Status: %s\n", summary.PlatformStatus)
	fmt.Fprintf(&b, "Services: %d\n", summary.ServiceCount)
	fmt.Fprintf(&b, "Recent Incidents: %d (%d SEV1, %d SEV2, %d SEV3)\n",
		summary.IncidentSummary.Total,
		summary.IncidentSummary.SEV1,
		summary.IncidentSummary.SEV2,
		summary.IncidentSummary.SEV3,
	)
	for _, p := range summary.HighRiskPrograms {
		fmt.Fprintf(&b, "At-risk program: %s (%s, score %d)\n", p.Name, p.Risk, p.RiskScore)
	}
	b.WriteString("\nGenerate a brief executive summary (3 bullet points) for leadership meeting.")

	return Prompt{
		System:      systemPrompt,
		User:        b.String(),
		Temperature: narrativeTemperature,
		MaxTokens:   narrativeMaxTokens,
	}
}
