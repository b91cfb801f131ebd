package ratelimit

import (
	"time"
)

// TierLimiter combines the sliding admission window and the concurrency
// gate for one tier behind a single atomic admission operation.
//
// Admission consumes a concurrency slot and window capacity together:
// TryAdmit either takes both or takes nothing, so a request can never hold
// a slot it was rate-limited out of using.
type TierLimiter struct {
	window *Window
	gate   *Gate
	config Config
}

// NewTierLimiter creates a limiter for one tier from its configuration.
func NewTierLimiter(config Config) *TierLimiter {
	return &TierLimiter{
		window: NewWindow(config.RequestsPerMinute, config.TokensPerMinute, config.Window, config.BucketSize),
		gate:   NewGate(config.MaxConcurrent),
		config: config,
	}
}

// CanAdmit reports whether a request with the given token estimate could
// be admitted right now: the window has capacity and the gate has a free
// slot. It consumes nothing and is inherently racy; use TryAdmit to
// actually admit.
func (l *TierLimiter) CanAdmit(tokens int) bool {
	if l.gate.limit > 0 && l.gate.InFlight() >= l.gate.limit {
		return false
	}
	return l.window.CanAdmit(tokens)
}

// TryAdmit atomically admits one request with the given token estimate.
// On success the caller holds a concurrency slot and the window has
// recorded the request; the caller must Release when the call reaches a
// terminal outcome. On failure nothing is consumed.
func (l *TierLimiter) TryAdmit(tokens int) bool {
	if !l.gate.TryAcquire() {
		return false
	}
	if !l.window.TryConsume(tokens) {
		l.gate.Release()
		return false
	}
	return true
}

// Release returns the concurrency slot taken by a successful TryAdmit.
// Window capacity is never returned early; it expires with the trailing
// window.
func (l *TierLimiter) Release() {
	l.gate.Release()
}

// SetCeilings replaces the window ceilings without resetting the trailing
// counters. The concurrency limit is fixed at construction.
func (l *TierLimiter) SetCeilings(requestsPerMinute, tokensPerMinute int) {
	l.window.SetCeilings(requestsPerMinute, tokensPerMinute)
}

// RecordTokens adds token usage to the window beyond the admission-time
// estimate, keeping the trailing token sum honest when a call used more
// tokens than estimated.
func (l *TierLimiter) RecordTokens(extra int) {
	l.window.AddTokens(extra)
}

// Status returns a point-in-time snapshot for observability.
func (l *TierLimiter) Status() Status {
	reqs, toks := l.window.Usage()
	return Status{
		RequestsInWindow: reqs,
		TokensInWindow:   toks,
		InFlight:         l.gate.InFlight(),
		MaxConcurrent:    l.gate.Limit(),
	}
}

// WindowDuration returns the trailing window length, for callers that need
// to size retry waits.
func (l *TierLimiter) WindowDuration() time.Duration {
	return l.window.window
}
