package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"veridian-hq/callisto/pkg/dispatch/budget/storage"
)

// DefaultSweepSchedule runs the sweep just after UTC midnight, when the
// previous day key has gone cold.
const DefaultSweepSchedule = "5 0 * * *"

// DefaultRetention keeps two days of past entries before sweeping.
const DefaultRetention = 48 * time.Hour

// Janitor garbage-collects stale tenant-day state on a cron schedule.
// Admission never reads past-day keys, so the sweep only reclaims memory
// and storage; it cannot affect correctness.
type Janitor struct {
	ledger    *Ledger
	backend   storage.Backend
	schedule  string
	retention time.Duration
	logger    *slog.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewJanitor creates a janitor for the ledger and its backend (backend may
// be nil). Empty schedule and zero retention fall back to the defaults.
func NewJanitor(ledger *Ledger, backend storage.Backend, schedule string, retention time.Duration) *Janitor {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Janitor{
		ledger:    ledger,
		backend:   backend,
		schedule:  schedule,
		retention: retention,
		logger:    slog.Default().With("component", "budget.janitor"),
		cron:      cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start schedules the sweep and runs it until the context is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil
	}

	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.schedule, err)
	}

	if _, err := j.cron.AddFunc(j.schedule, func() { j.Sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	j.cron.Start()
	j.running = true

	j.logger.Info("budget janitor started", "schedule", j.schedule, "retention", j.retention)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// Stop halts the schedule. A sweep in progress finishes.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	<-j.cron.Stop().Done()
	j.running = false
	j.logger.Info("budget janitor stopped")
}

// Sweep prunes in-memory entries and persisted state older than the
// retention horizon. Exposed for manual runs and tests.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)

	pruned := j.ledger.Prune(cutoff)

	deleted := 0
	if j.backend != nil {
		n, err := j.backend.Cleanup(ctx, cutoff)
		if err != nil {
			j.logger.Warn("storage cleanup failed", "error", err)
		} else {
			deleted = n
		}
	}

	j.logger.Info("budget sweep complete", "entries_pruned", pruned, "rows_deleted", deleted)
}
