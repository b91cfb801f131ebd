package storage

import (
	"context"
	"time"
)

// Backend defines the interface for ledger state persistence.
// Implementations must be thread-safe and support concurrent access.
type Backend interface {
	// Save persists the usage for a tenant-day, replacing any existing row.
	Save(ctx context.Context, usage *DayUsage) error

	// Load retrieves the usage for a tenant-day. Returns nil (no error) if
	// no row exists.
	Load(ctx context.Context, tenant, day string) (*DayUsage, error)

	// Cleanup removes rows last updated before the cutoff. Returns the
	// number of rows deleted.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases resources. The backend must not be used afterwards.
	Close() error
}

// DayUsage is the persisted committed usage for one (tenant, UTC day).
// Reserved holds are never persisted; they exist only in the admitting
// process and die with it.
type DayUsage struct {
	// Tenant is the tenant ID.
	Tenant string

	// Day is the UTC calendar day key (YYYY-MM-DD).
	Day string

	// CommittedCost is the settled spend in USD.
	CommittedCost float64

	// CallsPerTier counts committed calls per tier.
	CallsPerTier map[string]int64

	// Documents lists the documents with at least one committed call.
	Documents []string

	// LastUpdated is when this row was last written.
	LastUpdated time.Time
}
