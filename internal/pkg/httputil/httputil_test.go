package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/pkg/ctxlog"
	"github.com/bissquit/riskengine/internal/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error struct {
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandleDomainError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"not found", fmt.Errorf("incident INC-9: %w", domain.ErrNotFound), http.StatusNotFound, "incident INC-9: not found"},
		{"validation", domain.ErrValidation, http.StatusBadRequest, domain.ErrValidation.Error()},
		{"unmapped", errors.New("disk on fire"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleDomainError(t.Context(), rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantMessage, decodeError(t, rec).Error.Message)
		})
	}
}

func TestHandleError_CustomMessage(t *testing.T) {
	errResolved := errors.New("already resolved")
	rec := httptest.NewRecorder()

	HandleError(t.Context(), rec, fmt.Errorf("INC-1: %w", errResolved), []ErrorMapping{
		{Error: errResolved, Status: http.StatusConflict, Message: "incident is resolved"},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "incident is resolved", decodeError(t, rec).Error.Message)
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]int{"health": 87})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"data":{"health":87}}`, rec.Body.String())
}

func TestValidationError(t *testing.T) {
	t.Run("field errors", func(t *testing.T) {
		type request struct {
			Service string `json:"service" validate:"required"`
		}
		err := validator.New().Struct(request{})
		require.Error(t, err)

		rec := httptest.NewRecorder()
		ValidationError(rec, err)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "validation error", body.Error.Message)
		assert.JSONEq(t, `[{"field":"Service","message":"required"}]`, string(body.Error.Details))
	})

	t.Run("plain error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ValidationError(rec, errors.New("decode body: EOF"))

		body := decodeError(t, rec)
		assert.JSONEq(t, `"decode body: EOF"`, string(body.Error.Details))
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Service string `json:"service"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"service":"auth-service"}`, false},
		{"unknown field", `{"service":"auth-service","extra":1}`, true},
		{"trailing data", `{"service":"a"}{"service":"b"}`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(r, &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "auth-service", p.Service)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := CORSMiddleware([]string{"https://dash.example.com"})(next)

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://dash.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "X-Request-Id", rec.Header().Get("Access-Control-Expose-Headers"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://dash.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.Equal(t, "Content-Type, X-Request-Id", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	})
}

func TestMetricsMiddleware(t *testing.T) {
	var inFlight float64
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/metrics-test/{id}", func(w http.ResponseWriter, _ *http.Request) {
		inFlight = testutil.ToFloat64(metrics.HTTPRequestsInFlight)
		_, _ = w.Write([]byte("ok"))
	})

	before := testutil.ToFloat64(metrics.HTTPRequestsInFlight)
	series := testutil.CollectAndCount(metrics.HTTPRequestDuration)

	for _, id := range []string{"INC-1", "INC-2", "INC-3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics-test/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, before+1, inFlight)
	assert.Equal(t, before, testutil.ToFloat64(metrics.HTTPRequestsInFlight))
	// Distinct ids share one route series.
	assert.Equal(t, series+1, testutil.CollectAndCount(metrics.HTTPRequestDuration))
}

func TestRequestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLoggerMiddleware(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		ctxlog.FromContext(r.Context()).Info("handler log")
		Error(w, http.StatusInternalServerError, "internal error")
	})

	tests := []struct {
		path      string
		wantLevel string
		wantLines int
	}{
		{"/healthz", "DEBUG", 1},
		{"/boom", "ERROR", 2},
		{"/missing", "WARN", 1},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf.Reset()
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, tt.wantLines)

			var entry map[string]any
			require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
			assert.Equal(t, "http request", entry["msg"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.path, entry["path"])
			assert.NotEmpty(t, entry["request_id"])

			// Handler logs carry the request id too.
			for _, line := range lines[:len(lines)-1] {
				var handlerEntry map[string]any
				require.NoError(t, json.Unmarshal([]byte(line), &handlerEntry))
				assert.Equal(t, entry["request_id"], handlerEntry["request_id"])
			}
		})
	}
}

func TestRequestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, requestLogLevel("/api/v1/health", http.StatusOK))
	assert.Equal(t, slog.LevelDebug, requestLogLevel("/readyz", http.StatusOK))
	assert.Equal(t, slog.LevelError, requestLogLevel("/readyz", http.StatusServiceUnavailable))
	assert.Equal(t, slog.LevelWarn, requestLogLevel("/api/v1/incidents", http.StatusConflict))
}
