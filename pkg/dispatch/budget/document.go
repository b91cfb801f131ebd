package budget

import (
	"sync"
)

// DocumentCaps enforces the per-run ceilings for one document: maximum
// total cost and maximum calls per tier.
//
// The reservation discipline mirrors the Ledger so the Dispatcher treats
// both scopes identically: reserve at admission check, then settle with
// Commit or Refund. A DocumentCaps instance lives for one processing run
// and is discarded when the run completes; nothing is persisted.
type DocumentCaps struct {
	config DocumentConfig

	mu            sync.Mutex
	committedCost float64
	reservedCost  float64
	calls         map[string]int64 // committed + reserved, per tier
}

// DocumentReservation is a provisional hold against one document's caps.
type DocumentReservation struct {
	tier      string
	estimated float64
	settled   bool // guarded by DocumentCaps.mu
}

// NewDocumentCaps creates caps for one document processing run.
func NewDocumentCaps(config DocumentConfig) *DocumentCaps {
	return &DocumentCaps{
		config: config,
		calls:  make(map[string]int64),
	}
}

// CheckAndReserve atomically checks the run's caps and places a hold. The
// returned error wraps ErrBudgetExceeded when a cap would be exceeded.
func (d *DocumentCaps) CheckAndReserve(tier string, estimated float64) (*DocumentReservation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.config.MaxCost > 0 {
		total := d.committedCost + d.reservedCost
		if total+estimated > d.config.MaxCost {
			return nil, &DenialError{
				Scope:   "document",
				Cap:     "cost",
				Limit:   d.config.MaxCost,
				Current: total,
			}
		}
	}

	if d.config.MaxCallsPerTier > 0 {
		if d.calls[tier]+1 > int64(d.config.MaxCallsPerTier) {
			return nil, &DenialError{
				Scope:   "document",
				Cap:     "calls_per_tier",
				Limit:   float64(d.config.MaxCallsPerTier),
				Current: float64(d.calls[tier]),
			}
		}
	}

	d.reservedCost += estimated
	d.calls[tier]++

	return &DocumentReservation{tier: tier, estimated: estimated}, nil
}

// Commit settles a hold with the actual cost. The call stays counted.
func (d *DocumentCaps) Commit(res *DocumentReservation, actual float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res.settled {
		return ErrReservationSettled
	}
	res.settled = true

	d.reservedCost -= res.estimated
	d.committedCost += actual
	return nil
}

// Refund settles a hold by releasing it entirely, including its call slot.
func (d *DocumentCaps) Refund(res *DocumentReservation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if res.settled {
		return ErrReservationSettled
	}
	res.settled = true

	d.reservedCost -= res.estimated
	d.calls[res.tier]--
	return nil
}

// Spent returns the run's committed and reserved cost.
func (d *DocumentCaps) Spent() (committed, reserved float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committedCost, d.reservedCost
}
