package budget

import (
	"errors"
	"fmt"
)

// ClassConfig contains the daily caps for one tenant class.
type ClassConfig struct {
	// MaxCostPerDay is the hard daily cost ceiling in USD. Zero means no
	// cost cap.
	MaxCostPerDay float64 `yaml:"max_cost_per_day"`

	// MaxDocumentsPerDay caps the number of distinct documents a tenant
	// may start in one UTC day. Zero means no cap.
	MaxDocumentsPerDay int `yaml:"max_documents_per_day"`

	// MaxCallsPerTierPerDay caps calls per tier per day. Zero means no cap.
	MaxCallsPerTierPerDay int `yaml:"max_calls_per_tier_per_day"`
}

// DocumentConfig contains the caps for one document processing run.
type DocumentConfig struct {
	// MaxCost is the hard cost ceiling for the run in USD. Zero means no cap.
	MaxCost float64 `yaml:"max_cost"`

	// MaxCallsPerTier caps calls per tier for the run. Zero means no cap.
	MaxCallsPerTier int `yaml:"max_calls_per_tier"`
}

// Config contains tenant class definitions and the class assignment map.
type Config struct {
	// Classes maps class names to their daily caps. A "default" class is
	// used for tenants without an explicit assignment.
	Classes map[string]ClassConfig `yaml:"classes"`

	// TenantClasses maps tenant IDs to class names.
	TenantClasses map[string]string `yaml:"tenant_classes"`
}

// DefaultClass is the class applied to tenants with no explicit assignment.
const DefaultClass = "default"

// ClassFor resolves the class configuration for a tenant.
func (c Config) ClassFor(tenant string) ClassConfig {
	if name, ok := c.TenantClasses[tenant]; ok {
		if class, ok := c.Classes[name]; ok {
			return class
		}
	}
	return c.Classes[DefaultClass]
}

// Sentinel errors for budget denials and reservation misuse.
var (
	// ErrBudgetExceeded is returned when a tenant or document cap would be
	// exceeded by a reservation.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrReservationSettled is returned when a reservation is committed or
	// refunded more than once.
	ErrReservationSettled = errors.New("reservation already settled")
)

// DenialError explains which cap rejected a reservation.
type DenialError struct {
	// Scope is "tenant" or "document".
	Scope string

	// Tenant is the tenant whose cap was hit (empty for document scope).
	Tenant string

	// Cap names the cap that was hit (e.g. "daily_cost", "calls_per_tier").
	Cap string

	// Limit is the configured ceiling.
	Limit float64

	// Current is the committed-plus-reserved value at check time.
	Current float64
}

// Error implements the error interface.
func (e *DenialError) Error() string {
	if e.Scope == "document" {
		return fmt.Sprintf("document %s cap exceeded: current=%v, limit=%v", e.Cap, e.Current, e.Limit)
	}
	return fmt.Sprintf("tenant %s %s cap exceeded: current=%v, limit=%v", e.Tenant, e.Cap, e.Current, e.Limit)
}

// Unwrap allows errors.Is(err, ErrBudgetExceeded).
func (e *DenialError) Unwrap() error {
	return ErrBudgetExceeded
}

// Usage is a snapshot of one tenant-day's counters.
type Usage struct {
	// Tenant is the tenant ID.
	Tenant string

	// Day is the UTC calendar day key (YYYY-MM-DD).
	Day string

	// CommittedCost is the settled spend in USD.
	CommittedCost float64

	// ReservedCost is the outstanding optimistic holds in USD.
	ReservedCost float64

	// CallsPerTier counts committed-plus-reserved calls per tier.
	CallsPerTier map[string]int64

	// Documents is the number of distinct documents started.
	Documents int
}
