// Package config loads application configuration from defaults, an optional
// YAML file and RISKENGINE_ environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore, e.g. RISKENGINE_SERVER__PORT.
const EnvPrefix = "RISKENGINE_"

// Config is the application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	CORS          CORSConfig          `koanf:"cors"`
	Log           LogConfig           `koanf:"log"`
	Data          DataConfig          `koanf:"data"`
	Forecast      ForecastConfig      `koanf:"forecast"`
	Backend       BackendConfig       `koanf:"backend"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	// OpenAPIPath is the document served at /api/openapi.yaml.
	OpenAPIPath string `koanf:"openapi_path"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DataConfig controls the demo data loaded at startup.
type DataConfig struct {
	// Seed feeds every random generator; equal seeds give equal data.
	Seed uint64 `koanf:"seed"`
	// SampleIncidents is the number of generated incidents.
	SampleIncidents int `koanf:"sample_incidents"`
}

// ForecastConfig holds risk forecaster settings.
type ForecastConfig struct {
	Confidence float64 `koanf:"confidence"`
}

// BackendConfig holds text-generation backend settings. The backend is
// disabled when APIKey is empty.
type BackendConfig struct {
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	Temperature float32       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
	RateLimit   float64       `koanf:"rate_limit"`
	Burst       int           `koanf:"burst"`
}

// Enabled reports whether a backend is configured.
func (c BackendConfig) Enabled() bool {
	return c.APIKey != ""
}

// NotificationsConfig holds escalation settings.
type NotificationsConfig struct {
	// BaseURL is the public address used to link incidents in messages.
	BaseURL     string           `koanf:"base_url"`
	SendTimeout time.Duration    `koanf:"send_timeout"`
	Mattermost  MattermostConfig `koanf:"mattermost"`
}

// MattermostConfig holds Mattermost webhook settings. Escalations are
// disabled when WebhookURL is empty.
type MattermostConfig struct {
	WebhookURL string `koanf:"webhook_url"`
	Username   string `koanf:"username"`
	IconURL    string `koanf:"icon_url"`
	Channel    string `koanf:"channel"`
}

// Enabled reports whether escalations are sent.
func (c NotificationsConfig) Enabled() bool {
	return c.Mattermost.WebhookURL != ""
}

var defaults = map[string]any{
	"server.host":                "0.0.0.0",
	"server.port":                "8080",
	"server.metrics_port":        "9090",
	"server.read_timeout":        15 * time.Second,
	"server.read_header_timeout": 5 * time.Second,
	"server.write_timeout":       30 * time.Second,
	"server.idle_timeout":        60 * time.Second,
	"server.request_timeout":     60 * time.Second,
	"server.openapi_path":        "api/openapi/openapi.yaml",
	"cors.allowed_origins":       []string{"*"},
	"log.level":                  "info",
	"log.format":                 "json",
	"data.seed":                  42,
	"data.sample_incidents":      15,
	"forecast.confidence":        0.75,
	"backend.model":              "gpt-4o-mini",
	"backend.temperature":        0.3,
	"backend.max_tokens":         300,
	"backend.timeout":            10 * time.Second,
	"backend.rate_limit":         1.0,
	"backend.burst":              5,
	"notifications.send_timeout": 10 * time.Second,
}

// Load reads configuration. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// envKey maps RISKENGINE_BACKEND__API_KEY to backend.api_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks the configuration for values the application cannot run
// with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.MetricsPort == "" {
		errs = append(errs, errors.New("server.metrics_port is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if c.Data.SampleIncidents < 0 {
		errs = append(errs, errors.New("data.sample_incidents must not be negative"))
	}
	if c.Forecast.Confidence < 0 || c.Forecast.Confidence > 1 {
		errs = append(errs, fmt.Errorf("forecast.confidence must be within [0, 1], got %v", c.Forecast.Confidence))
	}

	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}
	if c.Backend.RateLimit < 0 {
		errs = append(errs, errors.New("backend.rate_limit must not be negative"))
	}
	if c.Backend.Burst < 0 {
		errs = append(errs, errors.New("backend.burst must not be negative"))
	}

	if c.Notifications.SendTimeout <= 0 {
		errs = append(errs, errors.New("notifications.send_timeout must be positive"))
	}

	return errors.Join(errs...)
}
