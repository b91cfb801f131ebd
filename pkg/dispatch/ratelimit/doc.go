// Package ratelimit provides per-tier admission control for dispatch.
//
// # Overview
//
// Each compute tier is protected by two independent mechanisms:
//
//   - Window: a trailing sliding window tracking both request counts and
//     token counts, checked against the tier's requests-per-minute and
//     tokens-per-minute ceilings.
//   - Gate: a counting semaphore bounding simultaneously in-flight calls.
//
// TierLimiter combines the two behind a single atomic admission check so
// that a request either consumes a concurrency slot and window capacity
// together or consumes nothing.
//
// # Advisory throttling
//
// The window is advisory self-throttling against known external ceilings.
// It never calls the external tier and never errors; it only answers
// whether admitting a request now would exceed a configured ceiling.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package ratelimit
