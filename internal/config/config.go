// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and CUPCAKE_* env vars.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"time"

	"github.com/okian/cupcakes/internal/domain/model"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBDriver names the database/sql driver: postgres, sqlite3 or mysql.
	DBDriver string `koanf:"db_driver"`

	// DatabaseURL is the driver-specific data source name.
	DatabaseURL string `koanf:"database_url"`

	// DBMaxOpenConns bounds the connection pool.
	DBMaxOpenConns int `koanf:"db_max_open_conns"`

	// DBTimeoutMS is applied to store calls whose context has no deadline.
	DBTimeoutMS int `koanf:"db_timeout_ms"`

	// DefaultImage replaces a missing or empty image on create and update.
	DefaultImage string `koanf:"default_image"`

	// RateLimit is the steady request rate per second; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	// RateLimitBurst is the token bucket size.
	RateLimitBurst int `koanf:"rate_limit_burst"`

	// ShutdownTimeoutMS bounds graceful HTTP shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`

	// MetricsEnabled turns Prometheus recording on or off. /metrics is served either way.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// MetricsNamespace prefixes every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	// MetricsRefreshMS is how often the stored-cupcake and pool gauges are refreshed.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":8080",
		DBDriver:          DriverPostgres,
		DatabaseURL:       "postgres:///cupcakes?sslmode=disable",
		DBMaxOpenConns:    10,
		DBTimeoutMS:       5000,
		DefaultImage:      model.DefaultImage,
		RateLimit:         100,
		RateLimitBurst:    200,
		ShutdownTimeoutMS: 30_000,
		MetricsEnabled:    true,
		MetricsNamespace:  "cupcake",
		MetricsRefreshMS:  10_000,
	}
}

// DBTimeout returns DBTimeoutMS as a duration.
func (c *Config) DBTimeout() time.Duration {
	return time.Duration(c.DBTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// MetricsRefresh returns MetricsRefreshMS as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}
