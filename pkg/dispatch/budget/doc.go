// Package budget provides hard cost governance for dispatch.
//
// # Overview
//
// Two scopes of ceiling are enforced:
//
//   - Ledger: shared counters keyed by (tenant, UTC calendar day) with hard
//     caps on daily cost, daily calls per tier, and daily distinct
//     documents. Caps come from the tenant's class configuration.
//   - DocumentCaps: ephemeral counters scoped to one document's processing
//     run, capping total cost and calls per tier for that run.
//
// # Reservations
//
// Admission uses optimistic reservation: CheckAndReserve atomically checks
// the caps and holds the estimated cost, so concurrent requests cannot
// jointly overshoot a cap. Every reservation is later settled exactly once,
// either by Commit (replacing the hold with the actual cost and refunding
// the difference) or by Refund (releasing the hold entirely).
//
// The invariant maintained under arbitrary concurrency: committed plus
// reserved cost for a tenant-day never exceeds the configured daily cap.
//
// # Day rollover
//
// Ledger entries are keyed by UTC calendar day. A new day simply reads a
// fresh key; past-day entries are never consulted again and are swept by
// the Janitor on a cron schedule.
package budget
