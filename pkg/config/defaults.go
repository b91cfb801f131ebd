package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8085"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Tier defaults
	DefaultQueueCapacity = 1000
	DefaultQueueTimeout  = 5 * time.Minute

	// Retry defaults
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 2.0
	DefaultJitterMax   = 1 * time.Second

	// Budget defaults
	DefaultBudgetClass   = "default"
	DefaultSweepSchedule = "5 0 * * *"
	DefaultRetention     = 48 * time.Hour

	// Storage defaults
	DefaultStorageBackend    = "memory"
	DefaultSQLitePath        = "data/usage.db"
	DefaultSQLiteBusyTimeout = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "json"
	DefaultMetricsPath   = "/metrics"
)

// ApplyDefaults fills in default values for fields that were not set in the
// configuration file. It modifies the configuration in place.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Tier defaults - applied to each configured tier
	for name, tier := range cfg.Dispatch.Tiers {
		if tier.QueueCapacity == 0 {
			tier.QueueCapacity = DefaultQueueCapacity
		}
		if tier.QueueTimeout == 0 {
			tier.QueueTimeout = DefaultQueueTimeout
		}
		cfg.Dispatch.Tiers[name] = tier
	}

	// Retry defaults
	if cfg.Dispatch.Retry.MaxRetries == 0 {
		cfg.Dispatch.Retry.MaxRetries = DefaultMaxRetries
	}
	if cfg.Dispatch.Retry.BackoffBase == 0 {
		cfg.Dispatch.Retry.BackoffBase = DefaultBackoffBase
	}
	if cfg.Dispatch.Retry.JitterMax == 0 {
		cfg.Dispatch.Retry.JitterMax = DefaultJitterMax
	}

	// Budget defaults
	if cfg.Budget.Classes == nil {
		cfg.Budget.Classes = map[string]ClassConfig{DefaultBudgetClass: {}}
	}
	if _, ok := cfg.Budget.Classes[DefaultBudgetClass]; !ok {
		cfg.Budget.Classes[DefaultBudgetClass] = ClassConfig{}
	}
	if cfg.Budget.SweepSchedule == "" {
		cfg.Budget.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Budget.Retention == 0 {
		cfg.Budget.Retention = DefaultRetention
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}
