package notifications

import (
	"context"
	"errors"
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

type fakeSender struct {
	mu      sync.Mutex
	sent    []Notification
	ctxs    []context.Context
	ctxErrs []error // each send context's error at call time
	err     error
}

func (f *fakeSender) Type() ChannelType { return ChannelTypeMattermost }

func (f *fakeSender) Send(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	f.ctxs = append(f.ctxs, ctx)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.err
}

func newTestNotifier(t *testing.T, sender Sender, config Config) *Notifier {
	t.Helper()
	s, err := store.New(store.Data{
		Services:     store.DefaultServices(),
		Programs:     store.DefaultPrograms(),
		Dependencies: store.DefaultDependencies(),
	})
	require.NoError(t, err)

	renderer, err := NewRenderer()
	require.NoError(t, err)

	return NewNotifier(s, renderer, sender, config, func() time.Time { return testNow })
}

func sev1Incident() domain.Incident {
	return domain.Incident{
		ID:          "INC-1000",
		Service:     "payment-service",
		Severity:    domain.SeveritySEV1,
		Timestamp:   testNow,
		Description: "Card declines",
		Status:      domain.IncidentStatusNew,
		AssignedTo:  domain.UnassignedOwner,
	}
}

func TestNotifier_NotifyIncident(t *testing.T) {
	sender := &fakeSender{}
	n := newTestNotifier(t, sender, Config{
		Target:  "https://mm.example.com/hooks/abc",
		BaseURL: "https://risk.example.com/",
	})

	counter := notificationsSent.WithLabelValues(string(ChannelTypeMattermost), statusSent)
	before := testutil.ToFloat64(counter)

	n.NotifyIncident(context.Background(), sev1Incident())
	n.Wait()

	require.Len(t, sender.sent, 1)
	got := sender.sent[0]
	assert.Equal(t, "https://mm.example.com/hooks/abc", got.To)
	assert.Equal(t, "[SEV1] payment-service incident INC-1000", got.Subject)
	assert.Equal(t, "SEV1", got.Severity)
	assert.Contains(t, got.Body, "Immediate exec alert")
	assert.Contains(t, got.Body, "| **Revenue risk** | High |")
	assert.Contains(t, got.Body, "| **Service health** | 87.0% |")
	assert.Contains(t, got.Body, "[View incident](https://risk.example.com/api/v1/incidents/INC-1000)")

	_, hasDeadline := sender.ctxs[0].Deadline()
	assert.True(t, hasDeadline)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestNotifier_buildPayload(t *testing.T) {
	n := newTestNotifier(t, &fakeSender{}, Config{})

	payload := n.buildPayload(sev1Incident())

	assert.Equal(t, MessageTypeEscalation, payload.MessageType)
	assert.Equal(t, "Immediate exec alert", payload.Escalation)
	assert.Equal(t, "3-7", payload.DelayDays)
	assert.Equal(t, []string{"Checkout", "Revenue", "E-commerce programs"}, payload.AffectedAreas)
	assert.Equal(t, 87.0, payload.ServiceHealth)
	assert.Equal(t, testNow, payload.GeneratedAt)
	assert.Empty(t, payload.IncidentURL)

	require.NotEmpty(t, payload.Programs)
	for _, p := range payload.Programs {
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Owner)
	}
}

func TestNotifier_buildPayload_UnknownService(t *testing.T) {
	n := newTestNotifier(t, &fakeSender{}, Config{})

	inc := sev1Incident()
	inc.Service = "ghost-service"
	payload := n.buildPayload(inc)

	assert.Zero(t, payload.ServiceHealth)
	assert.NotNil(t, payload.Programs)
	assert.Empty(t, payload.Programs)
	assert.Equal(t, []string{"General platform"}, payload.AffectedAreas)
}

func TestNotifier_NotifyIncident_SendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("webhook down")}
	n := newTestNotifier(t, sender, Config{Target: "https://mm.example.com/hooks/abc"})

	counter := notificationsSent.WithLabelValues(string(ChannelTypeMattermost), statusFailed)
	before := testutil.ToFloat64(counter)

	n.NotifyIncident(context.Background(), sev1Incident())
	n.Wait()

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestNotifier_NotifyIncident_OutlivesCaller(t *testing.T) {
	sender := &fakeSender{}
	n := newTestNotifier(t, sender, Config{SendTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.NotifyIncident(ctx, sev1Incident())
	n.Wait()

	require.Len(t, sender.ctxErrs, 1)
	assert.NoError(t, sender.ctxErrs[0])
}
