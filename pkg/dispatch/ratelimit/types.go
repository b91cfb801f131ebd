package ratelimit

import "time"

// Config contains the admission limits for a single tier.
type Config struct {
	// RequestsPerMinute is the maximum number of requests admitted in any
	// trailing 60-second window. Zero means no request-rate ceiling.
	RequestsPerMinute int

	// TokensPerMinute is the maximum token sum admitted in any trailing
	// 60-second window. Zero means no token-rate ceiling.
	TokensPerMinute int

	// MaxConcurrent is the maximum number of simultaneously in-flight
	// calls. Zero means no concurrency bound.
	MaxConcurrent int

	// Window overrides the trailing window duration. Defaults to one
	// minute; shortened only in tests.
	Window time.Duration

	// BucketSize overrides the window bucket granularity. Defaults to one
	// second.
	BucketSize time.Duration
}

// Status is a point-in-time snapshot of a tier limiter, used for
// observability endpoints and metrics.
type Status struct {
	// RequestsInWindow is the number of requests admitted in the current
	// trailing window.
	RequestsInWindow int64

	// TokensInWindow is the token sum admitted in the current trailing
	// window.
	TokensInWindow int64

	// InFlight is the number of concurrency slots currently held.
	InFlight int

	// MaxConcurrent is the configured concurrency bound (0 = unbounded).
	MaxConcurrent int
}
