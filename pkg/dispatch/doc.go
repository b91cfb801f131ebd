// Package dispatch implements the budget-gated dispatch core.
//
// # Overview
//
// The Dispatcher admits, schedules, rate-limits, and cost-governs calls to
// tiers of expensive external computation on behalf of many concurrent
// producers and isolated tenants. Every request moves through an explicit
// state machine:
//
//	Received → BudgetChecked → Queued → Admitted → Executing →
//	    {Succeeded | RetryScheduled | Failed}
//
// Admission requires three things at once: a budget reservation (tenant
// daily caps and per-document caps), a free concurrency slot, and sliding
// window rate-limit capacity for the tier. The concurrency slot and window
// capacity are consumed atomically when a queued request is popped.
//
// # Fairness and backpressure
//
// Each tier has an independent priority queue ordered by (priority score
// descending, submission time ascending) and an independent worker pool,
// so a saturated tier never blocks another. Queues are bounded: a push
// onto a full queue fails with ErrQueueSaturated, which is the system's
// backpressure signal to producers. Items that wait past the tier's queue
// timeout are evicted and fail with ErrQueueTimeout rather than being
// dispatched arbitrarily late.
//
// # Retries and refunds
//
// Only a tier-reported rate-limit rejection is retried, with exponential
// backoff plus jitter, at the request's original priority, up to the
// configured maximum. Every terminal non-success path refunds any
// outstanding budget reservation before the result is delivered.
package dispatch
