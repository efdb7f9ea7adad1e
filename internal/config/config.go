// Package config loads and validates the canaryctl.yaml runtime
// configuration and the rollout spec documents submitted by operators.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	cerrors "github.com/systmms/canaryctl/internal/errors"
	"github.com/systmms/canaryctl/internal/logging"
)

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the canaryctl.yaml structure.
type Definition struct {
	Version int `yaml:"version"`

	// Listen is the HTTP API listen address (default ":8080").
	Listen string `yaml:"listen,omitempty"`

	// DataDir overrides the rollout archive location.
	DataDir string `yaml:"data_dir,omitempty"`

	// Router configures the traffic router adapter.
	Router RouterConfig `yaml:"router"`

	// MetricSource configures where canary readings come from.
	MetricSource MetricSourceConfig `yaml:"metric_source"`

	// Dispatch configures router call retries and timeouts.
	Dispatch *DispatchConfig `yaml:"dispatch,omitempty"`

	// Notifications configures terminal-event delivery.
	Notifications *NotificationConfig `yaml:"notifications,omitempty"`
}

// RouterConfig holds traffic router adapter configuration.
type RouterConfig struct {
	// Type selects the adapter. Currently "webhook".
	Type string `yaml:"type"`

	// URL is the router's base URL.
	URL string `yaml:"url"`

	// AuthType is bearer, api_key, or basic.
	AuthType string `yaml:"auth_type,omitempty"`

	// AuthValue is the credential for AuthType.
	AuthValue string `yaml:"auth_value,omitempty"`

	// Headers are additional HTTP headers to include.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Timeout is the per-call timeout as a duration string (default "10s").
	Timeout string `yaml:"timeout,omitempty"`
}

// MetricSourceConfig holds metric source configuration. Exactly one
// source type must be set.
type MetricSourceConfig struct {
	// Type selects the source: "prometheus" or "sql".
	Type string `yaml:"type"`

	// Prometheus configures an instant-query source.
	Prometheus *PrometheusSourceConfig `yaml:"prometheus,omitempty"`

	// SQL configures a database-backed source.
	SQL *SQLSourceConfig `yaml:"sql,omitempty"`
}

// PrometheusSourceConfig holds Prometheus source configuration.
type PrometheusSourceConfig struct {
	// URL is the Prometheus base URL.
	URL string `yaml:"url"`

	// Queries maps metric names to PromQL templates. Templates may use
	// {{.Service}} for the target workload.
	Queries map[string]string `yaml:"queries"`

	// Timeout is the per-read timeout as a duration string (default "5s").
	Timeout string `yaml:"timeout,omitempty"`
}

// SQLSourceConfig holds SQL source configuration.
type SQLSourceConfig struct {
	// Driver is "postgres" or "mysql".
	Driver string `yaml:"driver"`

	// DSN is the database connection string.
	DSN string `yaml:"dsn"`

	// Query returns (metric, value) rows for one service placeholder.
	Query string `yaml:"query"`

	// Timeout is the per-read timeout as a duration string (default "5s").
	Timeout string `yaml:"timeout,omitempty"`
}

// DispatchConfig holds router call retry policy.
type DispatchConfig struct {
	// MaxAttempts is the number of tries per weight assignment (default 3).
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// InitialBackoff is the first retry wait as a duration string
	// (default "1s"); it doubles per attempt.
	InitialBackoff string `yaml:"initial_backoff,omitempty"`

	// CallTimeout bounds each router call as a duration string
	// (default "10s").
	CallTimeout string `yaml:"call_timeout,omitempty"`
}

// Load reads and parses the canaryctl.yaml file.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return cerrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create a canaryctl.yaml or pass --config with the right path",
			}
		}
		return cerrors.ConfigError{
			Field:   "path",
			Value:   c.Path,
			Message: "failed to read configuration file: " + err.Error(),
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return cerrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if def.Version != 0 {
		return cerrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your canaryctl.yaml file",
		}
	}

	if err := def.Validate(); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

// Validate checks the definition for structural problems.
func (d *Definition) Validate() error {
	switch d.Router.Type {
	case "webhook":
	case "":
		return cerrors.ConfigError{
			Field:      "router.type",
			Message:    "router type is required",
			Suggestion: "Set 'router: {type: webhook, url: ...}'",
		}
	default:
		return cerrors.ConfigError{
			Field:      "router.type",
			Value:      d.Router.Type,
			Message:    "unknown router type",
			Suggestion: "Supported types: webhook",
		}
	}
	if d.Router.URL == "" {
		return cerrors.ConfigError{
			Field:   "router.url",
			Message: "router URL is required",
		}
	}

	switch d.MetricSource.Type {
	case "prometheus":
		if d.MetricSource.Prometheus == nil || d.MetricSource.Prometheus.URL == "" {
			return cerrors.ConfigError{
				Field:      "metric_source.prometheus",
				Message:    "prometheus source requires a url",
				Suggestion: "Set 'metric_source: {type: prometheus, prometheus: {url: ..., queries: ...}}'",
			}
		}
	case "sql":
		if d.MetricSource.SQL == nil || d.MetricSource.SQL.DSN == "" {
			return cerrors.ConfigError{
				Field:      "metric_source.sql",
				Message:    "sql source requires a driver and dsn",
				Suggestion: "Set 'metric_source: {type: sql, sql: {driver: postgres, dsn: ..., query: ...}}'",
			}
		}
	case "":
		return cerrors.ConfigError{
			Field:      "metric_source.type",
			Message:    "metric source type is required",
			Suggestion: "Supported types: prometheus, sql",
		}
	default:
		return cerrors.ConfigError{
			Field:      "metric_source.type",
			Value:      d.MetricSource.Type,
			Message:    "unknown metric source type",
			Suggestion: "Supported types: prometheus, sql",
		}
	}

	durations := map[string]string{
		"router.timeout": d.Router.Timeout,
	}
	if d.Dispatch != nil {
		durations["dispatch.initial_backoff"] = d.Dispatch.InitialBackoff
		durations["dispatch.call_timeout"] = d.Dispatch.CallTimeout
	}
	if d.MetricSource.Prometheus != nil {
		durations["metric_source.prometheus.timeout"] = d.MetricSource.Prometheus.Timeout
	}
	if d.MetricSource.SQL != nil {
		durations["metric_source.sql.timeout"] = d.MetricSource.SQL.Timeout
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return cerrors.ConfigError{
				Field:      field,
				Value:      value,
				Message:    "invalid duration",
				Suggestion: "Use Go duration syntax like '10s' or '1m30s'",
			}
		}
	}

	return nil
}

// ListenAddr returns the HTTP listen address with its default applied.
func (d *Definition) ListenAddr() string {
	if d.Listen == "" {
		return ":8080"
	}
	return d.Listen
}

// ParseDuration parses a duration string, returning fallback for empty
// input. Callers validate syntax via Definition.Validate first.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
