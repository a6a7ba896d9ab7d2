package impact

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/health"
	"github.com/bissquit/riskengine/internal/pkg/ctxlog"
	"github.com/bissquit/riskengine/internal/risk"
	"github.com/bissquit/riskengine/internal/store"
)

// MaxReportTitle bounds report titles.
const MaxReportTitle = 200

// Report errors.
var (
	ErrReportTitleRequired = fmt.Errorf("%w: report title is required", domain.ErrValidation)
	ErrReportTitleTooLong  = fmt.Errorf("%w: report title exceeds %d characters", domain.ErrValidation, MaxReportTitle)
	ErrInvalidReportType   = fmt.Errorf("%w: report_type must be one of Weekly, Monthly, Quarterly", domain.ErrValidation)
)

// ReportList is a filtered view of the report ledger.
type ReportList struct {
	Reports []domain.Report `json:"reports"`
	Count   int             `json:"count"`
}

// GenerateReportInput is the input for generating a report.
type GenerateReportInput struct {
	Title string
	Type  domain.ReportType
}

// Reporter keeps the executive report ledger. Generated reports are built
// from live platform health, incidents and program risk.
type Reporter struct {
	store  store.ReportWriter
	scorer *risk.Scorer
	now    func() time.Time
}

// NewReporter creates a new reporter.
func NewReporter(writer store.ReportWriter, now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{store: writer, scorer: risk.NewScorer(writer), now: now}
}

// ListReports returns reports most recent first. A non-empty reportType
// keeps only reports of that type, ignoring case; an unknown type matches
// nothing.
func (r *Reporter) ListReports(_ context.Context, reportType string) ReportList {
	reports := r.store.ListReports()
	if reportType = strings.TrimSpace(reportType); reportType != "" {
		filtered := make([]domain.Report, 0, len(reports))
		for _, rep := range reports {
			if strings.EqualFold(string(rep.Type), reportType) {
				filtered = append(filtered, rep)
			}
		}
		reports = filtered
	}
	return ReportList{Reports: reports, Count: len(reports)}
}

// Generate builds a report over the trailing period of its type and adds it
// to the ledger.
func (r *Reporter) Generate(ctx context.Context, input GenerateReportInput) (domain.Report, error) {
	title := strings.TrimSpace(input.Title)
	switch {
	case title == "":
		return domain.Report{}, ErrReportTitleRequired
	case len([]rune(title)) > MaxReportTitle:
		return domain.Report{}, ErrReportTitleTooLong
	case !input.Type.IsValid():
		return domain.Report{}, ErrInvalidReportType
	}

	now := r.now()
	metrics := r.metrics(ctx, input.Type, now)

	report := domain.Report{
		ID:          r.store.NextReportID(),
		Title:       title,
		Type:        input.Type,
		GeneratedAt: now,
		Summary:     reportSummary(input.Type, metrics),
		KeyMetrics:  metrics,
	}
	if err := r.store.AppendReport(report); err != nil {
		return domain.Report{}, fmt.Errorf("append report: %w", err)
	}

	reportsGenerated.WithLabelValues(string(input.Type)).Inc()
	ctxlog.FromContext(ctx).Info("executive report generated",
		"report_id", report.ID,
		"type", report.Type,
		"incidents", metrics.IncidentCount,
	)
	return report, nil
}

func (r *Reporter) metrics(ctx context.Context, reportType domain.ReportType, now time.Time) domain.ReportMetrics {
	since := now.Add(-time.Duration(reportType.PeriodDays()) * 24 * time.Hour)

	m := domain.ReportMetrics{
		PlatformHealth:   health.MeanHealth(r.store.ListServices()),
		HighRiskPrograms: r.scorer.Programs(ctx).HighRiskCount,
	}

	var resolved int
	var repair time.Duration
	for _, inc := range r.store.ListIncidents() {
		if !inc.Timestamp.After(since) || inc.Timestamp.After(now) {
			continue
		}
		m.IncidentCount++
		if inc.Severity == domain.SeveritySEV1 {
			m.SEV1Count++
		}
		if inc.ResolvedAt != nil {
			resolved++
			repair += inc.ResolvedAt.Sub(inc.Timestamp)
		}
	}
	if resolved > 0 {
		mttr := math.Round(repair.Hours()/float64(resolved)*10) / 10
		m.MTTRHours = &mttr
	}
	return m
}

func reportSummary(reportType domain.ReportType, m domain.ReportMetrics) string {
	return fmt.Sprintf("%s report: platform health %s%% (%s) with %d incidents, %d critical, over the last %d days.",
		reportType,
		formatPercent(m.PlatformHealth),
		domain.StatusForHealth(m.PlatformHealth),
		m.IncidentCount,
		m.SEV1Count,
		reportType.PeriodDays(),
	)
}
