// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/riskengine/internal/config"
	"github.com/bissquit/riskengine/internal/health"
	"github.com/bissquit/riskengine/internal/impact"
	"github.com/bissquit/riskengine/internal/impact/openai"
	"github.com/bissquit/riskengine/internal/incidents"
	"github.com/bissquit/riskengine/internal/notifications"
	"github.com/bissquit/riskengine/internal/notifications/mattermost"
	"github.com/bissquit/riskengine/internal/pkg/httputil"
	"github.com/bissquit/riskengine/internal/pkg/metrics"
	"github.com/bissquit/riskengine/internal/risk"
	"github.com/bissquit/riskengine/internal/store"
	"github.com/bissquit/riskengine/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const storeMetricsInterval = 15 * time.Second

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	store         *store.Store
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	notifier      *notifications.Notifier

	shuttingDown atomic.Bool
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	now := time.Now

	data := store.Fixtures(store.NewRand(cfg.Data.Seed), now(), cfg.Data.SampleIncidents)
	st, err := store.New(data)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	logger.Info("store loaded",
		"services", len(data.Services),
		"programs", len(data.Programs),
		"incidents", len(data.Incidents),
		"seed", cfg.Data.Seed,
	)

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		store:         st,
		metricsCancel: metricsCancel,
	}

	router, err := app.setupRouter(now)
	if err != nil {
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	go app.collectStoreMetrics(metricsCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application. In-flight escalations are
// given until ctx expires to finish.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.shuttingDown.Store(true)
	a.metricsCancel()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if err := a.waitNotifier(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (a *App) waitNotifier(ctx context.Context) error {
	if a.notifier == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		a.notifier.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for escalations: %w", ctx.Err())
	}
}

func (a *App) collectStoreMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordStoreMetrics(a.store)

	ticker := time.NewTicker(storeMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordStoreMetrics(a.store)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Notifier returns the escalation notifier, or nil when escalations are
// disabled.
func (a *App) Notifier() *notifications.Notifier {
	return a.notifier
}

func (a *App) setupRouter(now func() time.Time) (*chi.Mux, error) {
	cfg := a.config
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, cfg.Server.OpenAPIPath)
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(docsPage))
	})

	var backend impact.TextGenerator
	if cfg.Backend.Enabled() {
		client, err := openai.NewClient(openai.Config{
			APIKey:      cfg.Backend.APIKey,
			BaseURL:     cfg.Backend.BaseURL,
			Model:       cfg.Backend.Model,
			Temperature: cfg.Backend.Temperature,
			MaxTokens:   cfg.Backend.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("create backend client: %w", err)
		}
		backend = client
	} else {
		a.logger.Warn("text generation backend is disabled: impact analysis uses deterministic rules")
	}

	var escalations incidents.EscalationNotifier
	if cfg.Notifications.Enabled() {
		renderer, err := notifications.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("create notification renderer: %w", err)
		}
		sender := mattermost.NewSender(mattermost.Config{
			Username: cfg.Notifications.Mattermost.Username,
			IconURL:  cfg.Notifications.Mattermost.IconURL,
			Channel:  cfg.Notifications.Mattermost.Channel,
			Timeout:  cfg.Notifications.SendTimeout,
		})
		a.notifier = notifications.NewNotifier(a.store, renderer, sender, notifications.Config{
			Target:      cfg.Notifications.Mattermost.WebhookURL,
			BaseURL:     cfg.Notifications.BaseURL,
			SendTimeout: cfg.Notifications.SendTimeout,
		}, now)
		escalations = a.notifier
	}

	a.logger.Info("integrations configured",
		"backend_enabled", cfg.Backend.Enabled(),
		"escalations_enabled", cfg.Notifications.Enabled(),
	)

	aggregator := health.NewAggregator(a.store, store.NewRand(cfg.Data.Seed+1), now)
	incidentService := incidents.NewService(a.store, escalations, now)
	scorer := risk.NewScorer(a.store)
	forecaster := risk.NewForecaster(a.store, cfg.Forecast.Confidence, now)
	translator := impact.NewTranslator(backend, a.store, impact.Config{
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		Burst:     cfg.Backend.Burst,
	}, now)

	healthHandler := health.NewHandler(aggregator)
	incidentsHandler := incidents.NewHandler(incidentService)
	riskHandler := risk.NewHandler(scorer, forecaster, now)
	reporter := impact.NewReporter(a.store, now)
	impactHandler := impact.NewHandler(translator, reporter)

	r.Route("/api/v1", func(r chi.Router) {
		healthHandler.RegisterRoutes(r)
		incidentsHandler.RegisterRoutes(r)
		riskHandler.RegisterRoutes(r)
		impactHandler.RegisterRoutes(r)
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	if a.shuttingDown.Load() {
		httputil.Text(w, http.StatusServiceUnavailable, "Shutting down")
		return
	}
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

const docsPage = `<!DOCTYPE html>
<html>
<head>
    <title>Risk Engine API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`
