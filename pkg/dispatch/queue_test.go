package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"veridian-hq/callisto/pkg/dispatch/ratelimit"
)

func openLimiter() *ratelimit.TierLimiter {
	return ratelimit.NewTierLimiter(ratelimit.Config{})
}

func testScheduler(capacity int, timeout time.Duration, limiter *ratelimit.TierLimiter, onTimeout func(*item)) *scheduler {
	if limiter == nil {
		limiter = openLimiter()
	}
	if onTimeout == nil {
		onTimeout = func(*item) {}
	}
	cfg := TierConfig{QueueCapacity: capacity, QueueTimeout: timeout}
	return newScheduler(TierFast, cfg, limiter, onTimeout)
}

func queuedItem(id string, score int, submittedAt time.Time) *item {
	return &item{
		id:          id,
		req:         &Request{Tier: TierFast},
		score:       score,
		submittedAt: submittedAt,
	}
}

func TestScheduler_PriorityOrdering(t *testing.T) {
	s := testScheduler(0, 0, nil, nil)
	base := time.Now()

	// Pushed out of order on purpose.
	items := []*item{
		queuedItem("low-late", 0, base.Add(2*time.Second)),
		queuedItem("high", 5, base.Add(3*time.Second)),
		queuedItem("low-early", 0, base.Add(1*time.Second)),
		queuedItem("mid", 3, base),
	}
	for _, it := range items {
		if err := s.push(it); err != nil {
			t.Fatalf("push(%s) failed: %v", it.id, err)
		}
	}

	want := []string{"high", "mid", "low-early", "low-late"}
	for i, id := range want {
		it, ok := s.tryPop()
		if !ok {
			t.Fatalf("Pop %d returned nothing", i)
		}
		if it.id != id {
			t.Errorf("Pop %d = %s, want %s", i, it.id, id)
		}
		s.limiter.Release()
	}
}

func TestScheduler_FIFOWithinScore(t *testing.T) {
	s := testScheduler(0, 0, nil, nil)
	now := time.Now()

	// Identical score and timestamp: sequence breaks the tie.
	for _, id := range []string{"first", "second", "third"} {
		if err := s.push(queuedItem(id, 2, now)); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}

	for _, want := range []string{"first", "second", "third"} {
		it, ok := s.tryPop()
		if !ok || it.id != want {
			t.Fatalf("Expected %s, got %+v (ok=%v)", want, it, ok)
		}
		s.limiter.Release()
	}
}

func TestScheduler_Saturation(t *testing.T) {
	s := testScheduler(2, 0, nil, nil)
	now := time.Now()

	if err := s.push(queuedItem("a", 0, now)); err != nil {
		t.Fatalf("push a: %v", err)
	}
	if err := s.push(queuedItem("b", 0, now)); err != nil {
		t.Fatalf("push b: %v", err)
	}

	if err := s.push(queuedItem("c", 0, now)); !errors.Is(err, ErrQueueSaturated) {
		t.Errorf("Expected ErrQueueSaturated, got %v", err)
	}

	if s.depth() != 2 {
		t.Errorf("Expected depth 2, got %d", s.depth())
	}
}

func TestScheduler_TimeoutEviction(t *testing.T) {
	// A limiter with one slot, already taken, so nothing is admitted and
	// queued items age past their deadline.
	limiter := ratelimit.NewTierLimiter(ratelimit.Config{MaxConcurrent: 1})
	if !limiter.TryAdmit(0) {
		t.Fatal("Could not take the only slot")
	}

	var mu sync.Mutex
	var evicted []string
	s := testScheduler(0, 30*time.Millisecond, limiter, func(it *item) {
		mu.Lock()
		evicted = append(evicted, it.id)
		mu.Unlock()
	})

	now := time.Now()
	// The high-score item sits at the head; the low one is buried behind
	// it and must still be evicted at its deadline.
	if err := s.push(queuedItem("head", 5, now)); err != nil {
		t.Fatal(err)
	}
	if err := s.push(queuedItem("buried", 0, now)); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := s.tryPop(); ok {
		t.Fatal("Nothing should be admitted with the slot taken")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 2 {
		t.Fatalf("Expected both items evicted, got %v", evicted)
	}
	if s.depth() != 0 {
		t.Errorf("Expected empty queue after eviction, got depth %d", s.depth())
	}
}

func TestScheduler_Remove(t *testing.T) {
	s := testScheduler(0, 0, nil, nil)
	now := time.Now()

	s.push(queuedItem("keep", 0, now))
	s.push(queuedItem("drop", 5, now))

	if _, ok := s.remove("drop"); !ok {
		t.Fatal("Expected remove to find the queued item")
	}
	if _, ok := s.remove("drop"); ok {
		t.Error("Second remove must report not-queued")
	}
	if _, ok := s.remove("never-queued"); ok {
		t.Error("Unknown ID must report not-queued")
	}

	it, ok := s.tryPop()
	if !ok || it.id != "keep" {
		t.Errorf("Expected keep to survive, got %+v (ok=%v)", it, ok)
	}
}

func TestScheduler_PopWhenReady(t *testing.T) {
	s := testScheduler(0, 0, nil, nil)

	// Delayed push must wake the blocked pop.
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.push(queuedItem("late", 0, time.Now()))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	it, err := s.popWhenReady(ctx)
	if err != nil {
		t.Fatalf("popWhenReady failed: %v", err)
	}
	if it.id != "late" {
		t.Errorf("Expected late, got %s", it.id)
	}
}

func TestScheduler_PopWhenReady_ContextCanceled(t *testing.T) {
	s := testScheduler(0, 0, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := s.popWhenReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
}
