package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g. "dispatch.tiers.fast.requests_per_minute").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access to
// all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a
// ValidationError if any validation rules fail. All validation errors are
// collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDispatch(&cfg.Dispatch)...)
	errs = append(errs, validateBudget(&cfg.Budget)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{"server.listen_address", "must not be empty"})
	} else if !strings.Contains(cfg.ListenAddress, ":") {
		errs = append(errs, FieldError{"server.listen_address", "must be in host:port format"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{"server.shutdown_timeout", "must not be negative"})
	}

	return errs
}

func validateDispatch(cfg *DispatchConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Tiers) == 0 {
		errs = append(errs, FieldError{"dispatch.tiers", "at least one tier must be configured"})
	}

	for name, tier := range cfg.Tiers {
		field := func(f string) string { return fmt.Sprintf("dispatch.tiers.%s.%s", name, f) }

		if name == "" {
			errs = append(errs, FieldError{"dispatch.tiers", "tier name must not be empty"})
		}
		if tier.RequestsPerMinute < 0 {
			errs = append(errs, FieldError{field("requests_per_minute"), "must not be negative"})
		}
		if tier.TokensPerMinute < 0 {
			errs = append(errs, FieldError{field("tokens_per_minute"), "must not be negative"})
		}
		if tier.MaxConcurrent < 0 {
			errs = append(errs, FieldError{field("max_concurrent"), "must not be negative"})
		}
		if tier.QueueCapacity < 0 {
			errs = append(errs, FieldError{field("queue_capacity"), "must not be negative"})
		}
		if tier.QueueTimeout < 0 {
			errs = append(errs, FieldError{field("queue_timeout"), "must not be negative"})
		}
		if tier.Workers < 0 {
			errs = append(errs, FieldError{field("workers"), "must not be negative"})
		}
		if tier.Workers == 0 && tier.MaxConcurrent == 0 {
			errs = append(errs, FieldError{field("workers"), "must be set when max_concurrent is unbounded"})
		}
		if tier.CostPerThousandTokens < 0 {
			errs = append(errs, FieldError{field("cost_per_thousand_tokens"), "must not be negative"})
		}
		if tier.Endpoint != "" {
			u, err := url.Parse(tier.Endpoint)
			if err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
				errs = append(errs, FieldError{field("endpoint"), "must be an http or https URL"})
			}
		}
	}

	if cfg.Retry.MaxRetries < 0 {
		errs = append(errs, FieldError{"dispatch.retry.max_retries", "must not be negative"})
	}
	if cfg.Retry.BackoffBase < 1 {
		errs = append(errs, FieldError{"dispatch.retry.backoff_base", "must be at least 1"})
	}
	if cfg.Retry.JitterMax < 0 {
		errs = append(errs, FieldError{"dispatch.retry.jitter_max", "must not be negative"})
	}

	return errs
}

func validateBudget(cfg *BudgetConfig) []FieldError {
	var errs []FieldError

	for name, class := range cfg.Classes {
		field := func(f string) string { return fmt.Sprintf("budget.classes.%s.%s", name, f) }

		if class.MaxCostPerDay < 0 {
			errs = append(errs, FieldError{field("max_cost_per_day"), "must not be negative"})
		}
		if class.MaxDocumentsPerDay < 0 {
			errs = append(errs, FieldError{field("max_documents_per_day"), "must not be negative"})
		}
		if class.MaxCallsPerTierPerDay < 0 {
			errs = append(errs, FieldError{field("max_calls_per_tier_per_day"), "must not be negative"})
		}
	}

	for tenant, class := range cfg.TenantClasses {
		if _, ok := cfg.Classes[class]; !ok {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("budget.tenant_classes.%s", tenant),
				Message: fmt.Sprintf("references unknown class %q", class),
			})
		}
	}

	if cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "budget.sweep_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.Retention < 0 {
		errs = append(errs, FieldError{"budget.retention", "must not be negative"})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("must be \"memory\" or \"sqlite\", got %q", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{"storage.sqlite.path", "must not be empty"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error; got %q", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be \"json\" or \"text\", got %q", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{"telemetry.metrics.path", "must start with /"})
	}

	return errs
}
