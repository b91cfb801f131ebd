package ratelimit

import (
	"context"
)

// Gate bounds the number of simultaneously in-flight calls for a tier.
//
// It is a counting semaphore built on a buffered channel so that Acquire
// can block until a slot frees and remains responsive to context
// cancellation. A nil-safe unbounded mode (limit 0) admits everything.
//
// Every successful Acquire or TryAcquire must be paired with exactly one
// Release; callers defer the release immediately after acquiring so the
// slot is returned on every exit path.
type Gate struct {
	slots chan struct{}
	limit int
}

// NewGate creates a gate bounding in-flight calls at limit. A limit of
// zero or less creates an unbounded gate.
func NewGate(limit int) *Gate {
	g := &Gate{limit: limit}
	if limit > 0 {
		g.slots = make(chan struct{}, limit)
	}
	return g
}

// Acquire blocks until a slot is free or the context is done. It returns
// ctx.Err() on cancellation without consuming a slot.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.slots == nil {
		return ctx.Err()
	}

	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire acquires a slot without blocking. Returns false if the gate
// is full.
func (g *Gate) TryAcquire() bool {
	if g.slots == nil {
		return true
	}

	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot to the gate. Calling Release without a matching
// acquire is a programming error and panics rather than corrupting the
// in-flight count.
func (g *Gate) Release() {
	if g.slots == nil {
		return
	}

	select {
	case <-g.slots:
	default:
		panic("ratelimit: Gate.Release without matching Acquire")
	}
}

// InFlight returns the number of slots currently held.
func (g *Gate) InFlight() int {
	if g.slots == nil {
		return 0
	}
	return len(g.slots)
}

// Limit returns the configured bound (0 = unbounded).
func (g *Gate) Limit() int {
	return g.limit
}
