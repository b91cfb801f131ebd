package config

import "time"

// Config is the root configuration structure for Callisto. It contains all
// configuration sections for the admin server, the dispatch core, budget
// enforcement, usage storage, and telemetry.
type Config struct {
	// Server contains HTTP admin server configuration including listen
	// address and timeouts.
	Server ServerConfig `yaml:"server"`

	// Dispatch contains per-tier rate limits, queue sizing, and the retry
	// policy for rate-limited calls.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Budget contains the daily spend classes and the tenant-to-class
	// assignments.
	Budget BudgetConfig `yaml:"budget"`

	// Storage selects the backend that persists committed daily usage
	// across restarts.
	Storage StorageConfig `yaml:"storage"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP admin server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8085").
	// Default: "127.0.0.1:8085"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request when
	// keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before forcing it.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DispatchConfig contains configuration for the dispatch core.
type DispatchConfig struct {
	// Tiers maps tier names to their ceilings and cost profile. Only
	// configured tiers accept work.
	Tiers map[string]TierConfig `yaml:"tiers"`

	// Retry is the shared retry policy for rate-limited calls.
	Retry RetryConfig `yaml:"retry"`

	// Watch enables hot reload of tier ceilings when the configuration
	// file changes on disk.
	// Default: false
	Watch bool `yaml:"watch"`
}

// TierConfig contains the ceilings and cost profile for one tier.
type TierConfig struct {
	// RequestsPerMinute is the trailing-window request ceiling.
	// Zero disables the check.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TokensPerMinute is the trailing-window token ceiling.
	// Zero disables the check.
	TokensPerMinute int `yaml:"tokens_per_minute"`

	// MaxConcurrent bounds simultaneously in-flight calls.
	// Zero means unbounded.
	MaxConcurrent int `yaml:"max_concurrent"`

	// QueueCapacity bounds the pending queue; submissions past it are
	// rejected with a backpressure error.
	// Default: 1000
	QueueCapacity int `yaml:"queue_capacity"`

	// QueueTimeout evicts queued work that has waited this long.
	// Default: 5m
	QueueTimeout time.Duration `yaml:"queue_timeout"`

	// Workers is the tier's worker pool size. Zero defaults to
	// MaxConcurrent.
	Workers int `yaml:"workers"`

	// CostPerThousandTokens converts token estimates into the USD cost
	// reserved against budgets.
	CostPerThousandTokens float64 `yaml:"cost_per_thousand_tokens"`

	// Endpoint is the upstream URL the tier's calls are forwarded to.
	// Empty means the tier rejects all work at invocation time.
	Endpoint string `yaml:"endpoint"`
}

// RetryConfig contains the retry policy for rate-limited calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retries after the first attempt.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// BackoffBase is the exponential base in seconds: the nth retry waits
	// base^n seconds plus jitter.
	// Default: 2.0
	BackoffBase float64 `yaml:"backoff_base"`

	// JitterMax bounds the uniform random jitter added to each wait.
	// Default: 1s
	JitterMax time.Duration `yaml:"jitter_max"`
}

// BudgetConfig contains daily budget classes and tenant assignments.
type BudgetConfig struct {
	// Classes maps class names to their daily caps. The "default" class
	// applies to tenants without an explicit assignment.
	Classes map[string]ClassConfig `yaml:"classes"`

	// TenantClasses maps tenant IDs to class names.
	TenantClasses map[string]string `yaml:"tenant_classes"`

	// SweepSchedule is the cron expression for pruning settled days.
	// Default: "5 0 * * *" (daily, shortly after UTC midnight)
	SweepSchedule string `yaml:"sweep_schedule"`

	// Retention is how long settled day entries are kept before pruning.
	// Default: 48h
	Retention time.Duration `yaml:"retention"`
}

// ClassConfig contains the daily caps for one budget class. Zero values
// disable the corresponding cap.
type ClassConfig struct {
	// MaxCostPerDay caps the total USD spend per tenant per UTC day.
	MaxCostPerDay float64 `yaml:"max_cost_per_day"`

	// MaxDocumentsPerDay caps distinct documents started per tenant per
	// UTC day.
	MaxDocumentsPerDay int `yaml:"max_documents_per_day"`

	// MaxCallsPerTierPerDay caps calls per tier per tenant per UTC day.
	MaxCallsPerTierPerDay int `yaml:"max_calls_per_tier_per_day"`
}

// StorageConfig selects and configures the usage persistence backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite backend settings.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/usage.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long queries wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn", or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
