package impact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	prompts []Prompt

	reply   string
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeBackend) Generate(_ context.Context, prompt Prompt) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		<-f.release
	}
	return f.reply, f.err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestStore(t *testing.T, incidents ...domain.Incident) *store.Store {
	t.Helper()
	s, err := store.New(store.Data{
		Services:     store.DefaultServices(),
		Programs:     store.DefaultPrograms(),
		Dependencies: store.DefaultDependencies(),
		Incidents:    incidents,
	})
	require.NoError(t, err)
	return s
}

func newTranslator(t *testing.T, backend TextGenerator, config Config, incidents ...domain.Incident) *Translator {
	t.Helper()
	return NewTranslator(backend, newTestStore(t, incidents...), config, clock)
}

func sampleIncident(id, service string, severity domain.Severity) domain.Incident {
	return domain.Incident{
		ID:          id,
		Service:     service,
		Severity:    severity,
		Timestamp:   testNow.Add(-time.Hour),
		Description: "Card Declines",
		Status:      domain.IncidentStatusNew,
		AssignedTo:  domain.UnassignedOwner,
	}
}

const validReply = `{"summary":"Checkout degraded","affected_programs":["Q4 Platform Launch"],"timeline_impact":"2 days","recommended_action":"Page payments on-call"}`

func TestTranslator_Translate_Backend(t *testing.T) {
	backend := &fakeBackend{reply: "Here you go:\n```json\n" + validReply + "\n```"}
	tr := newTranslator(t, backend, Config{})

	inc := sampleIncident("INC-1", "payment-service", domain.SeveritySEV1)
	got := tr.Translate(context.Background(), inc)

	assert.Equal(t, ImpactResult{
		Summary:           "Checkout degraded",
		AffectedPrograms:  []string{"Q4 Platform Launch"},
		TimelineImpact:    "2 days",
		RecommendedAction: "Page payments on-call",
		Source:            SourceBackend,
	}, got)

	require.Len(t, backend.prompts, 1)
	prompt := backend.prompts[0]
	assert.Contains(t, prompt.System, "Principal Technical Program Manager")
	assert.Contains(t, prompt.User, "Service: payment-service")
	assert.Contains(t, prompt.User, "Severity: SEV1")
	assert.Contains(t, prompt.User, "summary, affected_programs, timeline_impact, recommended_action")
	assert.InDelta(t, 0.3, prompt.Temperature, 1e-6)
	assert.Equal(t, 300, prompt.MaxTokens)
}

func TestTranslator_Translate_Fallback(t *testing.T) {
	inc := sampleIncident("INC-1", "payment-service", domain.SeveritySEV2)
	want := ImpactResult{
		Summary:           "payment-service incident may impact user experience",
		AffectedPrograms:  []string{"All dependent programs"},
		TimelineImpact:    "1-2 days delay",
		RecommendedAction: "Monitor and prepare rollback plan",
		Source:            SourceFallback,
	}

	tests := []struct {
		name    string
		backend TextGenerator
		kind    BackendErrorKind
	}{
		{"transport error", &fakeBackend{err: errors.New("connection refused")}, KindTransport},
		{"not json", &fakeBackend{reply: "The payment service is down."}, KindMalformed},
		{"missing field", &fakeBackend{reply: `{"summary":"x","affected_programs":["a"],"timeline_impact":"y"}`}, KindMalformed},
		{"empty programs", &fakeBackend{reply: `{"summary":"x","affected_programs":[],"timeline_impact":"y","recommended_action":"z"}`}, KindMalformed},
		{"no backend", nil, KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := fallbacks.WithLabelValues(operationTranslate, string(tt.kind))
			before := testutil.ToFloat64(counter)

			tr := newTranslator(t, tt.backend, Config{})
			assert.Equal(t, want, tr.Translate(context.Background(), inc))
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}

func TestTranslator_Translate_Timeout(t *testing.T) {
	backend := &fakeBackend{reply: validReply, release: make(chan struct{})}
	t.Cleanup(func() { close(backend.release) })

	tr := newTranslator(t, backend, Config{Timeout: 20 * time.Millisecond})
	counter := fallbacks.WithLabelValues(operationTranslate, string(KindTimeout))
	before := testutil.ToFloat64(counter)

	start := time.Now()
	got := tr.Translate(context.Background(), sampleIncident("INC-1", "auth-service", domain.SeveritySEV1))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, SourceFallback, got.Source)
	assert.Equal(t, "auth-service incident may impact user experience", got.Summary)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestTranslator_Translate_RateLimited(t *testing.T) {
	backend := &fakeBackend{reply: validReply}
	tr := newTranslator(t, backend, Config{RateLimit: 0.001, Burst: 1})

	first := tr.Translate(context.Background(), sampleIncident("INC-1", "auth-service", domain.SeveritySEV1))
	second := tr.Translate(context.Background(), sampleIncident("INC-2", "auth-service", domain.SeveritySEV1))

	assert.Equal(t, SourceBackend, first.Source)
	assert.Equal(t, SourceFallback, second.Source)
	assert.Equal(t, 1, backend.callCount())
}

func TestTranslator_Translate_SharesConcurrentCalls(t *testing.T) {
	backend := &fakeBackend{
		reply:   validReply,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	tr := newTranslator(t, backend, Config{Timeout: 5 * time.Second})
	inc := sampleIncident("INC-1", "payment-service", domain.SeveritySEV1)

	const callers = 8
	results := make([]ImpactResult, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = tr.Translate(context.Background(), inc)
		}()
	}

	<-backend.entered
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.Equal(t, 1, backend.callCount())
	for _, r := range results {
		assert.Equal(t, SourceBackend, r.Source)
	}

	// Callers get independent copies.
	results[0].AffectedPrograms[0] = "mutated"
	assert.Equal(t, "Q4 Platform Launch", results[1].AffectedPrograms[0])
}

func TestTranslator_Analyze(t *testing.T) {
	inc := sampleIncident("INC-1", "payment-service", domain.SeveritySEV1)

	t.Run("rules without backend", func(t *testing.T) {
		tr := newTranslator(t, nil, Config{}, inc)
		a, err := tr.AnalyzeIncident(context.Background(), "INC-1")
		require.NoError(t, err)
		assert.Nil(t, a.Impact)
		require.NotNil(t, a.Detailed)
		assert.Equal(t, "High", a.Detailed.RevenueRisk)
		assert.Equal(t, testNow, a.AnalyzedAt)
	})

	t.Run("backend when configured", func(t *testing.T) {
		tr := newTranslator(t, &fakeBackend{reply: validReply}, Config{}, inc)
		a := tr.Analyze(context.Background(), inc)
		assert.Nil(t, a.Detailed)
		require.NotNil(t, a.Impact)
		assert.Equal(t, SourceBackend, a.Impact.Source)
	})

	t.Run("unknown incident", func(t *testing.T) {
		tr := newTranslator(t, nil, Config{})
		_, err := tr.AnalyzeIncident(context.Background(), "INC-404")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestParseImpact(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain object", validReply, false},
		{"wrapped in prose", "Sure! " + validReply + " Hope this helps.", false},
		{"programs as string", `{"summary":"s","affected_programs":"Q4","timeline_impact":"t","recommended_action":"r"}`, false},
		{"no object", "nothing here", true},
		{"broken json", `{"summary": "s",`, true},
		{"blank summary", `{"summary":"  ","affected_programs":["a"],"timeline_impact":"t","recommended_action":"r"}`, true},
		{"programs wrong type", `{"summary":"s","affected_programs":3,"timeline_impact":"t","recommended_action":"r"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseImpact(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, SourceBackend, got.Source)
			assert.NotEmpty(t, got.AffectedPrograms)
		})
	}
}

func TestBackendError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", backendError(KindTransport, cause))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindTransport, kindOf(err))
	assert.Equal(t, KindTransport, kindOf(errors.New("other")))
	assert.True(t, strings.HasPrefix(backendError(KindTimeout, cause).Error(), "backend timeout"))
}

type panickingBackend struct{}

func (panickingBackend) Generate(context.Context, Prompt) (string, error) {
	panic("nil map write")
}

func TestTranslator_Translate_BackendPanic(t *testing.T) {
	tr := newTranslator(t, panickingBackend{}, Config{})
	counter := fallbacks.WithLabelValues(operationTranslate, string(KindTransport))
	before := testutil.ToFloat64(counter)

	got := tr.Translate(context.Background(), sampleIncident("INC-1", "payment-service", domain.SeveritySEV1))

	assert.Equal(t, Fallback(sampleIncident("INC-1", "payment-service", domain.SeveritySEV1)), got)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestTranslator_Generate_BackendPanic(t *testing.T) {
	tr := newTranslator(t, panickingBackend{}, Config{})

	_, err := tr.generate(context.Background(), operationTranslate, IncidentPrompt(sampleIncident("INC-1", "auth-service", domain.SeveritySEV2)))

	require.Error(t, err)
	assert.ErrorIs(t, err, errBackendPanic)
	assert.Equal(t, KindTransport, kindOf(err))
	assert.Contains(t, err.Error(), "nil map write")
}

func TestIncidentPrompt_IgnoresStatus(t *testing.T) {
	inc := sampleIncident("INC-1", "payment-service", domain.SeveritySEV1)
	resolved := inc
	resolved.Status = domain.IncidentStatusResolved

	assert.Equal(t, IncidentPrompt(inc), IncidentPrompt(resolved))
}
