package domain

import (
	"strings"
	"time"
)

// ReportType is the cadence an executive report covers.
type ReportType string

// Report types.
const (
	ReportTypeWeekly    ReportType = "Weekly"
	ReportTypeMonthly   ReportType = "Monthly"
	ReportTypeQuarterly ReportType = "Quarterly"
)

// ReportTypes lists all valid report types from shortest to longest period.
var ReportTypes = []ReportType{ReportTypeWeekly, ReportTypeMonthly, ReportTypeQuarterly}

// IsValid checks if the report type is valid.
func (t ReportType) IsValid() bool {
	return t == ReportTypeWeekly || t == ReportTypeMonthly || t == ReportTypeQuarterly
}

// ParseReportType matches s against the report types ignoring case.
func ParseReportType(s string) (ReportType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range ReportTypes {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

// PeriodDays is the trailing window a report of this type covers.
func (t ReportType) PeriodDays() int {
	switch t {
	case ReportTypeWeekly:
		return 7
	case ReportTypeQuarterly:
		return 90
	default:
		return 30
	}
}

// ReportMetrics are the figures an executive report is built on.
type ReportMetrics struct {
	PlatformHealth   float64 `json:"platform_health"`
	IncidentCount    int     `json:"incident_count"`
	SEV1Count        int     `json:"sev1_count"`
	HighRiskPrograms int     `json:"high_risk_programs"`
	// MTTRHours is nil when no incident in the period was resolved.
	MTTRHours *float64 `json:"mttr_hours"`
}

// Report is a generated executive report.
type Report struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Type        ReportType    `json:"type"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     string        `json:"summary"`
	KeyMetrics  ReportMetrics `json:"key_metrics"`
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	if r.KeyMetrics.MTTRHours != nil {
		v := *r.KeyMetrics.MTTRHours
		r.KeyMetrics.MTTRHours = &v
	}
	return r
}
