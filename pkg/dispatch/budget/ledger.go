package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"veridian-hq/callisto/pkg/dispatch/budget/storage"
)

// dayKeyFormat is the UTC calendar day key layout.
const dayKeyFormat = "2006-01-02"

// Ledger tracks committed and reserved spend per (tenant, UTC day) and
// enforces the tenant class daily caps.
//
// All mutation goes through CheckAndReserve, Commit, and Refund; the check
// and the hold are atomic under one lock, which closes the check-then-act
// race between concurrent admissions. The interface deliberately does not
// assume single-process affinity: a backend implementing an atomic
// compare-and-swap could replace the in-memory path without changing
// callers.
type Ledger struct {
	config  Config
	backend storage.Backend
	logger  *slog.Logger

	now func() time.Time

	mu           sync.Mutex
	days         map[dayKey]*dayEntry
	reservations map[string]*Reservation
}

type dayKey struct {
	tenant string
	day    string
}

// dayEntry holds one tenant-day's counters. Guarded by Ledger.mu.
type dayEntry struct {
	committedCost float64
	reservedCost  float64

	committedCalls map[string]int64
	reservedCalls  map[string]int64

	// docReserved counts outstanding reservations per document;
	// docCommitted marks documents with at least one committed call.
	// The daily document count is the size of their union.
	docReserved  map[string]int
	docCommitted map[string]struct{}
}

func newDayEntry() *dayEntry {
	return &dayEntry{
		committedCalls: make(map[string]int64),
		reservedCalls:  make(map[string]int64),
		docReserved:    make(map[string]int),
		docCommitted:   make(map[string]struct{}),
	}
}

// documentCount returns the number of distinct documents touched today.
func (e *dayEntry) documentCount() int {
	n := len(e.docCommitted)
	for doc := range e.docReserved {
		if _, ok := e.docCommitted[doc]; !ok {
			n++
		}
	}
	return n
}

// Reservation is a provisional budget hold created by CheckAndReserve.
// It is settled exactly once, by Commit or Refund.
type Reservation struct {
	// ID uniquely identifies the reservation.
	ID string

	// Tenant, Tier, and Document identify what the hold is for.
	Tenant   string
	Tier     string
	Document string

	// Day is the UTC day key the hold was placed under. Settlement always
	// lands on this key, even if the day rolled over in between.
	Day string

	// Estimated is the held cost in USD.
	Estimated float64

	settled bool // guarded by Ledger.mu
}

// NewLedger creates a ledger with the given class configuration. backend
// may be nil for a purely in-memory ledger; when set, committed usage is
// persisted per tenant-day and reloaded lazily after a restart.
func NewLedger(config Config, backend storage.Backend, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default().With("component", "budget.ledger")
	}
	return &Ledger{
		config:       config,
		backend:      backend,
		logger:       logger,
		now:          time.Now,
		days:         make(map[dayKey]*dayEntry),
		reservations: make(map[string]*Reservation),
	}
}

// CheckAndReserve atomically checks the tenant's daily caps and, if all
// pass, places a hold for the estimated cost. The returned error wraps
// ErrBudgetExceeded (as a *DenialError) when a cap would be exceeded.
func (l *Ledger) CheckAndReserve(tenant, tier, document string, estimated float64) (*Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.now().UTC().Format(dayKeyFormat)
	entry := l.entryLocked(tenant, day)
	class := l.config.ClassFor(tenant)

	if class.MaxCostPerDay > 0 {
		total := entry.committedCost + entry.reservedCost
		if total+estimated > class.MaxCostPerDay {
			return nil, &DenialError{
				Scope:   "tenant",
				Tenant:  tenant,
				Cap:     "daily_cost",
				Limit:   class.MaxCostPerDay,
				Current: total,
			}
		}
	}

	if class.MaxCallsPerTierPerDay > 0 {
		calls := entry.committedCalls[tier] + entry.reservedCalls[tier]
		if calls+1 > int64(class.MaxCallsPerTierPerDay) {
			return nil, &DenialError{
				Scope:   "tenant",
				Tenant:  tenant,
				Cap:     "calls_per_tier",
				Limit:   float64(class.MaxCallsPerTierPerDay),
				Current: float64(calls),
			}
		}
	}

	if class.MaxDocumentsPerDay > 0 {
		_, reserved := entry.docReserved[document]
		_, committed := entry.docCommitted[document]
		if !reserved && !committed {
			docs := entry.documentCount()
			if docs+1 > class.MaxDocumentsPerDay {
				return nil, &DenialError{
					Scope:   "tenant",
					Tenant:  tenant,
					Cap:     "documents",
					Limit:   float64(class.MaxDocumentsPerDay),
					Current: float64(docs),
				}
			}
		}
	}

	res := &Reservation{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Tier:      tier,
		Document:  document,
		Day:       day,
		Estimated: estimated,
	}

	entry.reservedCost += estimated
	entry.reservedCalls[tier]++
	entry.docReserved[document]++
	l.reservations[res.ID] = res

	return res, nil
}

// Commit settles a reservation with the actual cost. The hold is released
// and the actual cost is committed; if the actual came in under the
// estimate, the difference is effectively refunded.
func (l *Ledger) Commit(res *Reservation, actual float64) error {
	l.mu.Lock()

	if err := l.releaseLocked(res); err != nil {
		l.mu.Unlock()
		return err
	}

	entry := l.entryLocked(res.Tenant, res.Day)
	entry.committedCost += actual
	entry.committedCalls[res.Tier]++
	entry.docCommitted[res.Document] = struct{}{}

	snapshot := committedSnapshot(res.Tenant, res.Day, entry)
	l.mu.Unlock()

	l.persist(snapshot)
	return nil
}

// committedSnapshot captures the committed (not reserved) counters for
// persistence. Caller must hold mu.
func committedSnapshot(tenant, day string, entry *dayEntry) *storage.DayUsage {
	calls := make(map[string]int64, len(entry.committedCalls))
	for tier, n := range entry.committedCalls {
		calls[tier] = n
	}
	docs := make([]string, 0, len(entry.docCommitted))
	for doc := range entry.docCommitted {
		docs = append(docs, doc)
	}
	return &storage.DayUsage{
		Tenant:        tenant,
		Day:           day,
		CommittedCost: entry.committedCost,
		CallsPerTier:  calls,
		Documents:     docs,
		LastUpdated:   time.Now().UTC(),
	}
}

// Refund settles a reservation by releasing the hold entirely. Used when a
// request fails after admission or is abandoned after retry exhaustion.
func (l *Ledger) Refund(res *Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.releaseLocked(res)
}

// Usage returns a snapshot of the tenant's counters for the current UTC day.
func (l *Ledger) Usage(tenant string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.usageLocked(tenant, l.now().UTC().Format(dayKeyFormat))
}

// Prune drops in-memory entries whose day key is older than the horizon.
// Past-day entries are never read by admission, so this is pure garbage
// collection.
func (l *Ledger) Prune(olderThan time.Time) int {
	cutoff := olderThan.UTC().Format(dayKeyFormat)

	l.mu.Lock()
	defer l.mu.Unlock()

	pruned := 0
	for key := range l.days {
		if key.day < cutoff {
			delete(l.days, key)
			pruned++
		}
	}
	return pruned
}

// releaseLocked removes the hold for res. Caller must hold mu.
func (l *Ledger) releaseLocked(res *Reservation) error {
	stored, ok := l.reservations[res.ID]
	if !ok || stored.settled {
		return ErrReservationSettled
	}
	stored.settled = true
	delete(l.reservations, res.ID)

	entry := l.entryLocked(res.Tenant, res.Day)
	entry.reservedCost -= res.Estimated
	entry.reservedCalls[res.Tier]--
	if entry.docReserved[res.Document]--; entry.docReserved[res.Document] <= 0 {
		delete(entry.docReserved, res.Document)
	}
	return nil
}

// entryLocked returns the tenant-day entry, creating it lazily. On first
// touch with a backend configured, committed counters are seeded from the
// persisted snapshot so a restart does not forget the day's spend.
// Caller must hold mu.
func (l *Ledger) entryLocked(tenant, day string) *dayEntry {
	key := dayKey{tenant: tenant, day: day}
	if entry, ok := l.days[key]; ok {
		return entry
	}

	entry := newDayEntry()
	l.days[key] = entry

	if l.backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		saved, err := l.backend.Load(ctx, tenant, day)
		cancel()
		if err != nil {
			l.logger.Warn("failed to load persisted usage", "tenant", tenant, "day", day, "error", err)
		} else if saved != nil {
			entry.committedCost = saved.CommittedCost
			for tier, calls := range saved.CallsPerTier {
				entry.committedCalls[tier] = calls
			}
			for _, doc := range saved.Documents {
				entry.docCommitted[doc] = struct{}{}
			}
		}
	}

	return entry
}

// usageLocked builds a snapshot. Caller must hold mu.
func (l *Ledger) usageLocked(tenant, day string) Usage {
	entry := l.entryLocked(tenant, day)

	calls := make(map[string]int64, len(entry.committedCalls))
	for tier, n := range entry.committedCalls {
		calls[tier] = n
	}
	for tier, n := range entry.reservedCalls {
		calls[tier] += n
	}

	return Usage{
		Tenant:        tenant,
		Day:           day,
		CommittedCost: entry.committedCost,
		ReservedCost:  entry.reservedCost,
		CallsPerTier:  calls,
		Documents:     entry.documentCount(),
	}
}

// persist saves committed usage to the backend without blocking the caller.
func (l *Ledger) persist(state *storage.DayUsage) {
	if l.backend == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.backend.Save(ctx, state); err != nil {
			l.logger.Warn("failed to persist usage", "tenant", state.Tenant, "day", state.Day, "error", err)
		}
	}()
}
