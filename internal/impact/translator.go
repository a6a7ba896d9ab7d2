// Package impact translates incidents into business impact for
// non-technical stakeholders, through a text-generation backend when one is
// configured and deterministic rules otherwise.
package impact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/pkg/ctxlog"
	"github.com/bissquit/riskengine/internal/risk"
	"github.com/bissquit/riskengine/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single backend call when none is configured.
const DefaultTimeout = 10 * time.Second

const (
	operationTranslate = "translate"
	operationNarrative = "narrative"
)

var (
	errRateLimited  = errors.New("local backend rate limit exceeded")
	errBackendPanic = errors.New("backend panicked")
)

// Source tells whether a result came from the backend or from rules.
type Source string

// Sources.
const (
	SourceBackend  Source = "backend"
	SourceFallback Source = "fallback"
	SourceRules    Source = "rules"
)

// Config holds translator configuration.
type Config struct {
	// Timeout bounds each backend call.
	Timeout time.Duration
	// RateLimit is the sustained backend calls per second. Zero disables
	// limiting.
	RateLimit float64
	Burst     int
}

// ImpactResult is the business impact of an incident.
type ImpactResult struct {
	Summary           string   `json:"summary"`
	AffectedPrograms  []string `json:"affected_programs"`
	TimelineImpact    string   `json:"timeline_impact"`
	RecommendedAction string   `json:"recommended_action"`
	Source            Source   `json:"source"`
}

// Fallback is the fixed result used whenever the backend cannot answer.
func Fallback(incident domain.Incident) ImpactResult {
	return ImpactResult{
		Summary:           incident.Service + " incident may impact user experience",
		AffectedPrograms:  []string{"All dependent programs"},
		TimelineImpact:    "1-2 days delay",
		RecommendedAction: "Monitor and prepare rollback plan",
		Source:            SourceFallback,
	}
}

// Translator maps incidents to business impact and composes executive
// summaries. It never returns backend errors to callers.
type Translator struct {
	backend TextGenerator
	store   store.Reader
	scorer  *risk.Scorer
	limiter *rate.Limiter
	timeout time.Duration
	now     func() time.Time

	inflight singleflight.Group
}

// NewTranslator creates a new translator. backend may be nil, in which case
// every backend-backed operation uses its deterministic fallback.
func NewTranslator(backend TextGenerator, reader store.Reader, config Config, now func() time.Time) *Translator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	if config.Burst < 1 {
		config.Burst = 1
	}
	if now == nil {
		now = time.Now
	}

	return &Translator{
		backend: backend,
		store:   reader,
		scorer:  risk.NewScorer(reader),
		limiter: rate.NewLimiter(limit, config.Burst),
		timeout: config.Timeout,
		now:     now,
	}
}

// HasBackend reports whether a text-generation backend is configured.
func (t *Translator) HasBackend() bool {
	return t.backend != nil
}

// Translate asks the backend for the incident's business impact. Any
// failure yields Fallback. Concurrent translations of the same incident
// share one backend call, keyed by incident id only: a caller may receive
// the result built from the snapshot of whichever caller started the call.
// The prompt reads only fields fixed at creation (service, severity,
// timestamp, description), so every snapshot of one incident yields the same
// prompt. Revisit the key if the prompt ever includes status.
func (t *Translator) Translate(ctx context.Context, incident domain.Incident) ImpactResult {
	v, err, shared := t.inflight.Do(incident.ID, func() (interface{}, error) {
		callCtx := ctxlog.With(ctx, "call_id", uuid.NewString(), "incident_id", incident.ID)

		raw, err := t.generate(callCtx, operationTranslate, IncidentPrompt(incident))
		if err != nil {
			return nil, err
		}
		result, err := parseImpact(raw)
		if err != nil {
			return nil, backendError(KindMalformed, err)
		}
		return result, nil
	})
	if err != nil {
		kind := kindOf(err)
		recordFallback(operationTranslate, kind)
		t.logFallback(ctx, operationTranslate, err,
			"incident_id", incident.ID,
			"shared", shared,
		)
		return Fallback(incident)
	}

	result := v.(ImpactResult)
	result.AffectedPrograms = slices.Clone(result.AffectedPrograms)
	return result
}

// Analysis is the impact analysis of a single incident.
type Analysis struct {
	Incident   domain.Incident `json:"incident"`
	Impact     *ImpactResult   `json:"impact,omitempty"`
	Detailed   *DetailedImpact `json:"detailed,omitempty"`
	AnalyzedAt time.Time       `json:"analysis_timestamp"`
}

// Analyze translates through the backend when one is configured and uses
// the deterministic tables otherwise.
func (t *Translator) Analyze(ctx context.Context, incident domain.Incident) Analysis {
	analysis := Analysis{Incident: incident, AnalyzedAt: t.now()}
	if t.HasBackend() {
		result := t.Translate(ctx, incident)
		analysis.Impact = &result
		return analysis
	}
	detailed := TranslateDetailed(incident)
	analysis.Detailed = &detailed
	return analysis
}

// AnalyzeIncident looks up an incident and analyzes it.
func (t *Translator) AnalyzeIncident(ctx context.Context, id string) (*Analysis, error) {
	incident, err := t.store.GetIncident(id)
	if err != nil {
		return nil, err
	}
	analysis := t.Analyze(ctx, incident)
	return &analysis, nil
}

// generate runs a single bounded backend call. The call is detached from
// the caller's cancellation so a shared call survives one caller leaving.
func (t *Translator) generate(ctx context.Context, operation string, prompt Prompt) (string, error) {
	if t.backend == nil {
		return "", backendError(KindUnavailable, ErrBackendNotConfigured)
	}
	if !t.limiter.Allow() {
		return "", backendError(KindRateLimited, errRateLimited)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("%w: %v", errBackendPanic, r)}
			}
		}()
		text, err := t.backend.Generate(ctx, prompt)
		done <- reply{text: text, err: err}
	}()

	var res reply
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	elapsed := time.Since(start)

	if res.err != nil {
		kind := KindTransport
		if errors.Is(res.err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		recordBackendCall(operation, kind, elapsed)
		return "", backendError(kind, res.err)
	}

	recordBackendCall(operation, "", elapsed)
	ctxlog.FromContext(ctx).Debug("backend call completed",
		"operation", operation,
		"duration_ms", elapsed.Milliseconds(),
	)
	return res.text, nil
}

func (t *Translator) logFallback(ctx context.Context, operation string, err error, args ...any) {
	logger := ctxlog.FromContext(ctx)
	args = append([]any{"operation", operation, "kind", kindOf(err), "error", err}, args...)
	if kindOf(err) == KindUnavailable {
		logger.Debug("using deterministic fallback", args...)
		return
	}
	logger.Warn("backend call failed, using deterministic fallback", args...)
}

func kindOf(err error) BackendErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTransport
}

// stringList accepts a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("affected_programs: %w", err)
	}
	*l = []string{one}
	return nil
}

type backendImpact struct {
	Summary           string     `json:"summary"`
	AffectedPrograms  stringList `json:"affected_programs"`
	TimelineImpact    string     `json:"timeline_impact"`
	RecommendedAction string     `json:"recommended_action"`
}

// parseImpact extracts the JSON object from a backend reply. Models often
// wrap the object in prose or code fences.
func parseImpact(raw string) (ImpactResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return ImpactResult{}, errors.New("no json object in reply")
	}

	var parsed backendImpact
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return ImpactResult{}, fmt.Errorf("decode reply: %w", err)
	}

	programs := make([]string, 0, len(parsed.AffectedPrograms))
	for _, p := range parsed.AffectedPrograms {
		if p = strings.TrimSpace(p); p != "" {
			programs = append(programs, p)
		}
	}

	result := ImpactResult{
		Summary:           strings.TrimSpace(parsed.Summary),
		AffectedPrograms:  programs,
		TimelineImpact:    strings.TrimSpace(parsed.TimelineImpact),
		RecommendedAction: strings.TrimSpace(parsed.RecommendedAction),
		Source:            SourceBackend,
	}

	var missing []string
	if result.Summary == "" {
		missing = append(missing, "summary")
	}
	if len(result.AffectedPrograms) == 0 {
		missing = append(missing, "affected_programs")
	}
	if result.TimelineImpact == "" {
		missing = append(missing, "timeline_impact")
	}
	if result.RecommendedAction == "" {
		missing = append(missing, "recommended_action")
	}
	if len(missing) > 0 {
		return ImpactResult{}, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}

	return result, nil
}
