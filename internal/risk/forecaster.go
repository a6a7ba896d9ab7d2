package risk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/store"
)

// Forecast parameters.
const (
	// WindowDays is the trailing history window used for forecasting.
	WindowDays = 30
	// DefaultConfidence is reported when no confidence is configured.
	DefaultConfidence = 0.75
	// DefaultLookaheadDays is used when the caller does not pick a horizon.
	DefaultLookaheadDays = 30
	// MaxLookaheadDays bounds the horizon a forecast is offered for.
	MaxLookaheadDays = 365

	// highRiskAbove is the window incident count above which a service is
	// flagged as high risk.
	highRiskAbove = 2
	// sev1Percent is the share of predicted incidents expected to be SEV1.
	sev1Percent = 10
	// monitoringShortlist caps services named in the monitoring advice.
	monitoringShortlist = 3
)

// ErrInvalidLookahead is returned for a lookahead outside
// [1, MaxLookaheadDays].
var ErrInvalidLookahead = fmt.Errorf("%w: lookahead_days must be between 1 and %d", domain.ErrValidation, MaxLookaheadDays)

// Forecaster projects incident volume from the trailing window.
type Forecaster struct {
	store      store.Reader
	confidence float64
	now        func() time.Time
}

// NewForecaster creates a new forecaster. A non-positive confidence falls
// back to DefaultConfidence.
func NewForecaster(reader store.Reader, confidence float64, now func() time.Time) *Forecaster {
	if confidence <= 0 {
		confidence = DefaultConfidence
	}
	if now == nil {
		now = time.Now
	}
	return &Forecaster{store: reader, confidence: confidence, now: now}
}

// Forecast is a prediction of incident volume over a lookahead horizon.
type Forecast struct {
	LookaheadDays          int      `json:"prediction_period_days"`
	WindowIncidents        int      `json:"window_incidents"`
	IncidentsPerDay        float64  `json:"incidents_per_day"`
	PredictedIncidents     int      `json:"predicted_incidents"`
	PredictedSEV1Incidents int      `json:"predicted_sev1_incidents"`
	HighRiskServices       []string `json:"high_risk_services"`
	ConfidenceScore        float64  `json:"confidence_score"`
	Recommendations        []string `json:"recommendations"`
}

// Predict forecasts incidents for the next lookaheadDays days.
func (f *Forecaster) Predict(_ context.Context, lookaheadDays int) (*Forecast, error) {
	if lookaheadDays <= 0 || lookaheadDays > MaxLookaheadDays {
		return nil, ErrInvalidLookahead
	}

	since := f.now().Add(-WindowDays * 24 * time.Hour)

	counts := make(map[string]int)
	windowCount := 0
	for _, inc := range f.store.ListIncidents() {
		if !inc.Timestamp.After(since) {
			continue
		}
		windowCount++
		counts[inc.Service]++
	}

	// Integer arithmetic keeps floor(count/30 * lookahead) exact.
	predicted := windowCount * lookaheadDays / WindowDays
	predictedSEV1 := predicted * sev1Percent / 100

	highRisk := highRiskServices(counts)

	return &Forecast{
		LookaheadDays:          lookaheadDays,
		WindowIncidents:        windowCount,
		IncidentsPerDay:        float64(windowCount) / WindowDays,
		PredictedIncidents:     predicted,
		PredictedSEV1Incidents: predictedSEV1,
		HighRiskServices:       highRisk,
		ConfidenceScore:        f.confidence,
		Recommendations:        forecastRecommendations(highRisk, predicted, lookaheadDays),
	}, nil
}

// highRiskServices returns services above the threshold, most incidents
// first and then by name.
func highRiskServices(counts map[string]int) []string {
	out := make([]string, 0)
	for name, n := range counts {
		if n > highRiskAbove {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func forecastRecommendations(highRisk []string, predicted, lookaheadDays int) []string {
	monitoring := "No high-risk services identified"
	if len(highRisk) > 0 {
		shortlist := highRisk[:min(monitoringShortlist, len(highRisk))]
		monitoring = "Increase monitoring for: " + strings.Join(shortlist, ", ")
	}
	return []string{
		monitoring,
		fmt.Sprintf("Expected %d incidents in next %d days", predicted, lookaheadDays),
		"Schedule proactive maintenance for high-risk services",
	}
}
