package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bissquit/riskengine/internal/config"
	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/impact"
	"github.com/bissquit/riskengine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPISpecPath = "../../api/openapi/openapi.yaml"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Server.OpenAPIPath = openAPISpecPath
	cfg.Log.Level = "error"
	cfg.Data.Seed = 7
	cfg.Backend.APIKey = ""
	cfg.Notifications.Mattermost.WebhookURL = ""
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *httptest.Server) {
	t.Helper()
	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(app.metricsCancel)

	server := httptest.NewServer(app.Router())
	t.Cleanup(server.Close)
	return app, server
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func TestApp_IncidentLifecycle(t *testing.T) {
	_, server := newTestApp(t, testConfig(t))
	client := testutil.NewClientWithValidation(t, server.URL, openAPISpecPath)

	var before envelope[struct {
		Service struct {
			Health float64 `json:"health"`
		} `json:"service"`
	}]
	resp, err := client.GET("/api/v1/services/payment-service")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &before)

	resp, err = client.POST("/api/v1/incidents", map[string]string{
		"service":     "payment-service",
		"severity":    "SEV2",
		"description": "Card declines",
		"impact":      "Checkout degraded",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created envelope[domain.Incident]
	testutil.DecodeJSON(t, resp, &created)
	assert.Equal(t, domain.IncidentStatusNew, created.Data.Status)
	assert.Equal(t, domain.UnassignedOwner, created.Data.AssignedTo)

	var after envelope[struct {
		Service struct {
			Health float64 `json:"health"`
		} `json:"service"`
	}]
	resp, err = client.GET("/api/v1/services/payment-service")
	require.NoError(t, err)
	testutil.DecodeJSON(t, resp, &after)
	assert.Equal(t, max(50, before.Data.Service.Health-8), after.Data.Service.Health)

	id := created.Data.ID

	resp, err = client.PATCH("/api/v1/incidents/"+id+"/status", map[string]string{"status": "investigating"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.PUT("/api/v1/incidents/"+id+"/resolve", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved envelope[domain.Incident]
	testutil.DecodeJSON(t, resp, &resolved)
	assert.Equal(t, domain.IncidentStatusResolved, resolved.Data.Status)
	assert.NotNil(t, resolved.Data.ResolvedAt)

	resp, err = client.PATCH("/api/v1/incidents/"+id+"/status", map[string]string{"status": "mitigated"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.GET("/api/v1/incidents/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestApp_GenerateReport(t *testing.T) {
	_, server := newTestApp(t, testConfig(t))
	client := testutil.NewClientWithValidation(t, server.URL, openAPISpecPath)

	resp, err := client.GET("/api/v1/reports")
	require.NoError(t, err)
	var before struct {
		Data impact.ReportList `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &before)
	require.Equal(t, 3, before.Data.Count)

	resp, err = client.POST("/api/v1/reports/generate", map[string]string{"title": "Weekly ops review", "report_type": "weekly"})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Data domain.Report `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &created)
	assert.Equal(t, "REPORT-4", created.Data.ID)
	assert.Equal(t, domain.ReportTypeWeekly, created.Data.Type)

	resp, err = client.GET("/api/v1/health")
	require.NoError(t, err)
	var platform struct {
		Data struct {
			PlatformHealth float64 `json:"platform_health"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &platform)
	assert.Equal(t, platform.Data.PlatformHealth, created.Data.KeyMetrics.PlatformHealth)

	resp, err = client.GET("/api/v1/reports")
	require.NoError(t, err)
	var after struct {
		Data impact.ReportList `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &after)
	assert.Equal(t, 4, after.Data.Count)
	assert.Equal(t, "REPORT-4", after.Data.Reports[0].ID)
}

func TestApp_ReadRoutesMatchContract(t *testing.T) {
	_, server := newTestApp(t, testConfig(t))
	client := testutil.NewClientWithValidation(t, server.URL, openAPISpecPath)

	paths := []string{
		"/version",
		"/api/v1/health",
		"/api/v1/services",
		"/api/v1/services/auth-service",
		"/api/v1/monitoring/realtime",
		"/api/v1/incidents",
		"/api/v1/incidents?limit=3&severity=SEV1",
		"/api/v1/incidents/INC-1000",
		"/api/v1/programs/risks",
		"/api/v1/programs/q4-launch",
		"/api/v1/ai/risk-prediction",
		"/api/v1/ai/risk-prediction?lookahead_days=7",
		"/api/v1/ai/incident/INC-1000",
		"/api/v1/ai/executive-summary",
		"/api/v1/ai/executive-summary/narrative",
		"/api/v1/reports",
		"/api/v1/reports?report_type=weekly",
		"/healthz",
		"/readyz",
		"/api/openapi.yaml",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			client.SetT(t)
			resp, err := client.GET(path)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestApp_ErrorResponses(t *testing.T) {
	_, server := newTestApp(t, testConfig(t))
	client := testutil.NewClientWithValidation(t, server.URL, openAPISpecPath).WithoutValidation()

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"unknown service", http.MethodPost, "/api/v1/incidents",
			map[string]string{"service": "ghost", "severity": "SEV1", "description": "x"}, http.StatusNotFound},
		{"invalid severity", http.MethodPost, "/api/v1/incidents",
			map[string]string{"service": "auth-service", "severity": "SEV9", "description": "x"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/incidents",
			map[string]string{"service": "auth-service", "severity": "SEV1", "description": "x", "owner": "me"}, http.StatusBadRequest},
		{"resolve via status", http.MethodPatch, "/api/v1/incidents/INC-1000/status",
			map[string]string{"status": "resolved"}, http.StatusBadRequest},
		{"unknown incident", http.MethodPut, "/api/v1/incidents/INC-9999/resolve", nil, http.StatusNotFound},
		{"bad limit", http.MethodGet, "/api/v1/incidents?limit=0", nil, http.StatusBadRequest},
		{"bad lookahead", http.MethodGet, "/api/v1/ai/risk-prediction?lookahead_days=-3", nil, http.StatusBadRequest},
		{"lookahead too far", http.MethodGet, "/api/v1/ai/risk-prediction?lookahead_days=1844674407370955161", nil, http.StatusBadRequest},
		{"unknown report type", http.MethodPost, "/api/v1/reports/generate",
			map[string]string{"title": "Daily digest", "report_type": "Daily"}, http.StatusBadRequest},
		{"report without title", http.MethodPost, "/api/v1/reports/generate",
			map[string]string{"report_type": "Weekly"}, http.StatusBadRequest},
		{"unknown program", http.MethodGet, "/api/v1/programs/unknown", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			var err error
			switch tt.method {
			case http.MethodPost:
				resp, err = client.POST(tt.path, tt.body)
			case http.MethodPatch:
				resp, err = client.PATCH(tt.path, tt.body)
			case http.MethodPut:
				resp, err = client.PUT(tt.path, tt.body)
			default:
				resp, err = client.GET(tt.path)
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body struct {
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			testutil.DecodeJSON(t, resp, &body)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestApp_EscalatesSEV1(t *testing.T) {
	var mu sync.Mutex
	var received []map[string]any
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	cfg := testConfig(t)
	cfg.Notifications.Mattermost.WebhookURL = webhook.URL
	app, server := newTestApp(t, cfg)
	require.NotNil(t, app.Notifier())

	client := testutil.NewClientWithValidation(t, server.URL, openAPISpecPath)
	for _, severity := range []string{"SEV2", "SEV1"} {
		resp, err := client.POST("/api/v1/incidents", map[string]string{
			"service":     "payment-service",
			"severity":    severity,
			"description": "Card declines",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		_ = resp.Body.Close()
	}

	app.Notifier().Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	attachments, ok := received[0]["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	assert.Contains(t, attachments[0].(map[string]any)["title"], "[SEV1] payment-service")
}

func TestApp_NotifierDisabledByDefault(t *testing.T) {
	app, _ := newTestApp(t, testConfig(t))
	assert.Nil(t, app.Notifier())
}

func TestApp_ReadinessAfterShutdown(t *testing.T) {
	app, _ := newTestApp(t, testConfig(t))

	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, app.Shutdown(context.Background()))

	rec = httptest.NewRecorder()
	app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"error", false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := initLogger(config.LogConfig{Level: tt.level, Format: "text"})
			assert.Equal(t, tt.debug, logger.Enabled(context.Background(), -4))
			assert.Equal(t, tt.warn, logger.Enabled(context.Background(), 4))
		})
	}
}
