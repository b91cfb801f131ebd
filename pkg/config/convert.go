package config

import (
	"veridian-hq/callisto/pkg/dispatch"
	"veridian-hq/callisto/pkg/dispatch/budget"
)

// DispatchConfig converts the file-level dispatch section into the
// dispatch core's configuration.
func (c *Config) DispatchConfig() dispatch.Config {
	tiers := make(map[dispatch.Tier]dispatch.TierConfig, len(c.Dispatch.Tiers))
	for name, tier := range c.Dispatch.Tiers {
		tiers[dispatch.Tier(name)] = dispatch.TierConfig{
			RequestsPerMinute:     tier.RequestsPerMinute,
			TokensPerMinute:       tier.TokensPerMinute,
			MaxConcurrent:         tier.MaxConcurrent,
			QueueCapacity:         tier.QueueCapacity,
			QueueTimeout:          tier.QueueTimeout,
			Workers:               tier.Workers,
			CostPerThousandTokens: tier.CostPerThousandTokens,
		}
	}

	return dispatch.Config{
		Tiers: tiers,
		Retry: dispatch.RetryConfig{
			MaxRetries:  c.Dispatch.Retry.MaxRetries,
			BackoffBase: c.Dispatch.Retry.BackoffBase,
			JitterMax:   c.Dispatch.Retry.JitterMax,
		},
	}
}

// BudgetConfig converts the file-level budget section into the ledger's
// configuration.
func (c *Config) BudgetConfig() budget.Config {
	classes := make(map[string]budget.ClassConfig, len(c.Budget.Classes))
	for name, class := range c.Budget.Classes {
		classes[name] = budget.ClassConfig{
			MaxCostPerDay:         class.MaxCostPerDay,
			MaxDocumentsPerDay:    class.MaxDocumentsPerDay,
			MaxCallsPerTierPerDay: class.MaxCallsPerTierPerDay,
		}
	}

	tenantClasses := make(map[string]string, len(c.Budget.TenantClasses))
	for tenant, class := range c.Budget.TenantClasses {
		tenantClasses[tenant] = class
	}

	return budget.Config{
		Classes:       classes,
		TenantClasses: tenantClasses,
	}
}
