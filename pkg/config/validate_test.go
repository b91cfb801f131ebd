package config

import (
	"strings"
	"testing"
)

// validConfig returns a minimal configuration that passes validation after
// defaults are applied.
func validConfig() *Config {
	cfg := &Config{
		Dispatch: DispatchConfig{
			Tiers: map[string]TierConfig{
				"fast": {MaxConcurrent: 4, CostPerThousandTokens: 0.001},
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
	}{
		{
			name:   "empty listen address",
			mutate: func(c *Config) { c.Server.ListenAddress = " " },
			field:  "server.listen_address",
		},
		{
			name:   "no tiers",
			mutate: func(c *Config) { c.Dispatch.Tiers = nil },
			field:  "dispatch.tiers",
		},
		{
			name: "negative rpm",
			mutate: func(c *Config) {
				tier := c.Dispatch.Tiers["fast"]
				tier.RequestsPerMinute = -1
				c.Dispatch.Tiers["fast"] = tier
			},
			field: "dispatch.tiers.fast.requests_per_minute",
		},
		{
			name: "unbounded tier without workers",
			mutate: func(c *Config) {
				tier := c.Dispatch.Tiers["fast"]
				tier.MaxConcurrent = 0
				tier.Workers = 0
				c.Dispatch.Tiers["fast"] = tier
			},
			field: "dispatch.tiers.fast.workers",
		},
		{
			name: "endpoint without scheme",
			mutate: func(c *Config) {
				tier := c.Dispatch.Tiers["fast"]
				tier.Endpoint = "localhost:9000/invoke"
				c.Dispatch.Tiers["fast"] = tier
			},
			field: "dispatch.tiers.fast.endpoint",
		},
		{
			name:   "backoff base below one",
			mutate: func(c *Config) { c.Dispatch.Retry.BackoffBase = 0.5 },
			field:  "dispatch.retry.backoff_base",
		},
		{
			name: "negative class cost",
			mutate: func(c *Config) {
				c.Budget.Classes["default"] = ClassConfig{MaxCostPerDay: -1}
			},
			field: "budget.classes.default.max_cost_per_day",
		},
		{
			name: "tenant mapped to unknown class",
			mutate: func(c *Config) {
				c.Budget.TenantClasses = map[string]string{"acme": "platinum"}
			},
			field: "budget.tenant_classes.acme",
		},
		{
			name:   "bad sweep schedule",
			mutate: func(c *Config) { c.Budget.SweepSchedule = "every day at noon" },
			field:  "budget.sweep_schedule",
		},
		{
			name:   "unknown storage backend",
			mutate: func(c *Config) { c.Storage.Backend = "postgres" },
			field:  "storage.backend",
		},
		{
			name:   "unknown logging level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "trace" },
			field:  "telemetry.logging.level",
		},
		{
			name: "metrics path without slash",
			mutate: func(c *Config) {
				c.Telemetry.Metrics.Enabled = true
				c.Telemetry.Metrics.Path = "metrics"
			},
			field: "telemetry.metrics.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error naming %q, got: %v", tt.field, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = "nohost"
	cfg.Dispatch.Retry.MaxRetries = -2
	cfg.Storage.Backend = "redis"

	err := Validate(cfg)
	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("Expected 3 field errors, got %d: %v", len(verr.Errors), verr)
	}
}
