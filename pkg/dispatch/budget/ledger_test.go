package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"veridian-hq/callisto/pkg/dispatch/budget/storage"
)

func testConfig(class ClassConfig) Config {
	return Config{
		Classes: map[string]ClassConfig{DefaultClass: class},
	}
}

func TestLedger_CheckAndReserve_CostCap(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxCostPerDay: 1.00}), nil, nil)

	res, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.60)
	if err != nil {
		t.Fatalf("Expected first reservation to pass: %v", err)
	}

	// committed + reserved would be 1.20 > 1.00
	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.60); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Expected ErrBudgetExceeded, got %v", err)
	}

	var denial *DenialError
	_, err = ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.60)
	if !errors.As(err, &denial) || denial.Cap != "daily_cost" {
		t.Errorf("Expected daily_cost denial, got %v", err)
	}

	// exact fit is allowed
	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.40); err != nil {
		t.Errorf("Expected exact-fit reservation to pass: %v", err)
	}

	_ = res
}

func TestLedger_CallsPerTierCap(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxCallsPerTierPerDay: 2}), nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0); err != nil {
			t.Fatalf("Reservation %d failed: %v", i, err)
		}
	}

	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Expected calls cap denial, got %v", err)
	}

	// a different tier has its own counter
	if _, err := ledger.CheckAndReserve("tenant-a", "deep", "doc-1", 0); err != nil {
		t.Errorf("Expected deep-tier reservation to pass: %v", err)
	}
}

func TestLedger_DocumentsPerDayCap(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxDocumentsPerDay: 2}), nil, nil)

	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0); err != nil {
		t.Fatalf("doc-1 failed: %v", err)
	}
	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-2", 0); err != nil {
		t.Fatalf("doc-2 failed: %v", err)
	}

	// a third distinct document blows the cap
	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-3", 0); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Expected documents cap denial, got %v", err)
	}

	// more calls on a known document are fine
	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0); err != nil {
		t.Errorf("Repeat document should pass: %v", err)
	}
}

func TestLedger_RefundReleasesDocumentSlot(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxDocumentsPerDay: 1}), nil, nil)

	res, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0)
	if err != nil {
		t.Fatalf("doc-1 failed: %v", err)
	}
	if err := ledger.Refund(res); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	// doc-1 never committed anything, so doc-2 can take the slot
	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-2", 0); err != nil {
		t.Errorf("Expected slot to free after refund: %v", err)
	}
}

func TestLedger_CommitRefundsDelta(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxCostPerDay: 1.00}), nil, nil)

	res, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.80)
	if err != nil {
		t.Fatalf("Reservation failed: %v", err)
	}

	// actual came in at half the estimate
	if err := ledger.Commit(res, 0.40); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	usage := ledger.Usage("tenant-a")
	if usage.CommittedCost != 0.40 {
		t.Errorf("CommittedCost = %v, want 0.40", usage.CommittedCost)
	}
	if usage.ReservedCost != 0 {
		t.Errorf("ReservedCost = %v, want 0", usage.ReservedCost)
	}

	// the freed delta is available again
	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.60); err != nil {
		t.Errorf("Expected freed delta to admit: %v", err)
	}
}

// Refund correctness: committed+reserved after a refunded call equals its
// value before the reservation.
func TestLedger_RefundRestoresBudget(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxCostPerDay: 5.00}), nil, nil)

	before := ledger.Usage("tenant-a")

	res, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 1.50)
	if err != nil {
		t.Fatalf("Reservation failed: %v", err)
	}
	if err := ledger.Refund(res); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	after := ledger.Usage("tenant-a")
	if after.CommittedCost != before.CommittedCost || after.ReservedCost != before.ReservedCost {
		t.Errorf("Budget not restored: before=%+v after=%+v", before, after)
	}
	if after.CallsPerTier["fast"] != 0 {
		t.Errorf("Call count not restored: %v", after.CallsPerTier)
	}
}

func TestLedger_DoubleSettleFails(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxCostPerDay: 5.00}), nil, nil)

	res, _ := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 1.00)

	if err := ledger.Commit(res, 1.00); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := ledger.Refund(res); !errors.Is(err, ErrReservationSettled) {
		t.Errorf("Expected ErrReservationSettled, got %v", err)
	}
	if err := ledger.Commit(res, 1.00); !errors.Is(err, ErrReservationSettled) {
		t.Errorf("Expected ErrReservationSettled on double commit, got %v", err)
	}

	// the double settle must not have corrupted the counters
	usage := ledger.Usage("tenant-a")
	if usage.CommittedCost != 1.00 || usage.ReservedCost != 0 {
		t.Errorf("Counters corrupted: %+v", usage)
	}
}

// Budget safety: under concurrent reservations, committed+reserved never
// exceeds the daily cap, and exactly the affordable number are admitted.
func TestLedger_ConcurrentReservations(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxCostPerDay: 1.00}), nil, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	// two concurrent $0.60 requests: exactly one fits under $1.00
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.60); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Errorf("Expected exactly 1 admission, got %d", admitted)
	}

	usage := ledger.Usage("tenant-a")
	if usage.CommittedCost+usage.ReservedCost > 1.00 {
		t.Errorf("Cap overshoot: %+v", usage)
	}
}

func TestLedger_TenantIsolation(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxCostPerDay: 1.00}), nil, nil)

	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 1.00); err != nil {
		t.Fatalf("tenant-a reservation failed: %v", err)
	}

	// tenant-a exhausted its cap; tenant-b is unaffected
	if _, err := ledger.CheckAndReserve("tenant-b", "fast", "doc-1", 1.00); err != nil {
		t.Errorf("tenant-b should be isolated from tenant-a: %v", err)
	}
}

func TestLedger_TenantClassResolution(t *testing.T) {
	config := Config{
		Classes: map[string]ClassConfig{
			DefaultClass: {MaxCostPerDay: 1.00},
			"premium":    {MaxCostPerDay: 10.00},
		},
		TenantClasses: map[string]string{"tenant-p": "premium"},
	}
	ledger := NewLedger(config, nil, nil)

	if _, err := ledger.CheckAndReserve("tenant-p", "fast", "doc-1", 5.00); err != nil {
		t.Errorf("Premium tenant should afford $5: %v", err)
	}
	if _, err := ledger.CheckAndReserve("tenant-x", "fast", "doc-1", 5.00); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Default-class tenant should be denied $5, got %v", err)
	}
}

func TestLedger_DayRollover(t *testing.T) {
	ledger := NewLedger(testConfig(ClassConfig{MaxCostPerDay: 1.00}), nil, nil)

	now := time.Date(2026, 9, 1, 23, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }

	res, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 1.00)
	if err != nil {
		t.Fatalf("Reservation failed: %v", err)
	}
	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.50); err == nil {
		t.Fatal("Expected denial before rollover")
	}

	// the clock crosses UTC midnight; a fresh day key is read
	now = time.Date(2026, 9, 2, 0, 30, 0, 0, time.UTC)

	if _, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.50); err != nil {
		t.Errorf("Expected fresh budget after rollover: %v", err)
	}

	// settlement of the old reservation lands on its original day key
	if err := ledger.Commit(res, 1.00); err != nil {
		t.Errorf("Commit across rollover failed: %v", err)
	}
	usage := ledger.Usage("tenant-a")
	if usage.CommittedCost != 0 {
		t.Errorf("Old-day commit leaked into new day: %+v", usage)
	}

	// the old entry is prunable once past the horizon
	pruned := ledger.Prune(time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC))
	if pruned != 1 {
		t.Errorf("Expected 1 entry pruned, got %d", pruned)
	}
}

func TestLedger_PersistsAndReloads(t *testing.T) {
	backend := storage.NewMemoryBackend()
	config := testConfig(ClassConfig{MaxCostPerDay: 1.00})

	ledger := NewLedger(config, backend, nil)
	res, err := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.75)
	if err != nil {
		t.Fatalf("Reservation failed: %v", err)
	}
	if err := ledger.Commit(res, 0.75); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// persistence is async; wait for the snapshot to land
	deadline := time.Now().Add(time.Second)
	for {
		row, _ := backend.Load(context.Background(), "tenant-a", time.Now().UTC().Format(dayKeyFormat))
		if row != nil && row.CommittedCost == 0.75 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Snapshot never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// a fresh ledger (simulated restart) resumes the day's spend
	restarted := NewLedger(config, backend, nil)
	if _, err := restarted.CheckAndReserve("tenant-a", "fast", "doc-1", 0.50); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Restarted ledger forgot committed spend: %v", err)
	}
	if _, err := restarted.CheckAndReserve("tenant-a", "fast", "doc-1", 0.25); err != nil {
		t.Errorf("Restarted ledger should admit within remainder: %v", err)
	}
}

func TestJanitor_Sweep(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ledger := NewLedger(testConfig(ClassConfig{}), backend, nil)

	old := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return old }
	res, _ := ledger.CheckAndReserve("tenant-a", "fast", "doc-1", 0.10)
	_ = ledger.Commit(res, 0.10)

	ledger.now = time.Now

	janitor := NewJanitor(ledger, backend, "", DefaultRetention)
	janitor.Sweep(context.Background())

	ledger.mu.Lock()
	remaining := len(ledger.days)
	ledger.mu.Unlock()
	if remaining != 0 {
		t.Errorf("Expected old entries swept, %d remain", remaining)
	}
}
