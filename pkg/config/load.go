package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow the
// naming convention CALLISTO_SECTION_FIELD (e.g. CALLISTO_SERVER_LISTEN_ADDRESS)
// and always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format CALLISTO_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("CALLISTO_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("CALLISTO_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("CALLISTO_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("CALLISTO_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Retry overrides
	if val := os.Getenv("CALLISTO_RETRY_MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Dispatch.Retry.MaxRetries = i
		}
	}
	if val := os.Getenv("CALLISTO_RETRY_BACKOFF_BASE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Dispatch.Retry.BackoffBase = f
		}
	}

	// Tier overrides - common tier names
	applyTierEnvOverrides(cfg, "fast")
	applyTierEnvOverrides(cfg, "deep")
	applyTierEnvOverrides(cfg, "multimodal")

	// Storage overrides
	if val := os.Getenv("CALLISTO_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("CALLISTO_STORAGE_SQLITE_PATH"); val != "" {
		cfg.Storage.SQLite.Path = val
	}

	// Telemetry overrides
	if val := os.Getenv("CALLISTO_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("CALLISTO_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("CALLISTO_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
}

// applyTierEnvOverrides applies CALLISTO_TIER_<NAME>_* overrides for one
// tier. The tier must already exist in the configuration.
func applyTierEnvOverrides(cfg *Config, name string) {
	tier, ok := cfg.Dispatch.Tiers[name]
	if !ok {
		return
	}

	prefix := "CALLISTO_TIER_" + envName(name) + "_"
	if val := os.Getenv(prefix + "REQUESTS_PER_MINUTE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			tier.RequestsPerMinute = i
		}
	}
	if val := os.Getenv(prefix + "TOKENS_PER_MINUTE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			tier.TokensPerMinute = i
		}
	}
	if val := os.Getenv(prefix + "MAX_CONCURRENT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			tier.MaxConcurrent = i
		}
	}
	if val := os.Getenv(prefix + "QUEUE_CAPACITY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			tier.QueueCapacity = i
		}
	}
	if val := os.Getenv(prefix + "COST_PER_THOUSAND_TOKENS"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			tier.CostPerThousandTokens = f
		}
	}

	cfg.Dispatch.Tiers[name] = tier
}

func envName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c == '-' || c == '.' {
			c = '_'
		}
		out = append(out, c)
	}
	return string(out)
}
