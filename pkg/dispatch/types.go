package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veridian-hq/callisto/pkg/dispatch/budget"
)

// Tier identifies one class of external compute resource with its own rate
// limits and cost profile.
type Tier string

const (
	// TierFast is the cheap, high-throughput tier.
	TierFast Tier = "fast"

	// TierDeep is the expensive, high-quality tier.
	TierDeep Tier = "deep"

	// TierMultimodal is the tier for visually dense inputs.
	TierMultimodal Tier = "multimodal"
)

// State is a position in the dispatch state machine.
type State string

const (
	StateReceived       State = "received"
	StateBudgetChecked  State = "budget_checked"
	StateQueued         State = "queued"
	StateAdmitted       State = "admitted"
	StateExecuting      State = "executing"
	StateSucceeded      State = "succeeded"
	StateRetryScheduled State = "retry_scheduled"
	StateFailed         State = "failed"
	StateCanceled       State = "canceled"
)

// PriorityInputs are the numeric signals priority scoring consumes. They
// come from upstream pre-analysis and are opaque to everything but Score.
type PriorityInputs struct {
	// InNarrativeThread marks work belonging to an active narrative thread.
	InNarrativeThread bool

	// Complexity is the estimated extraction complexity in [0, 1].
	Complexity float64
}

// Request is a unit of work submitted to the Dispatcher. It is immutable
// once submitted; queueing and retry state belong to the Dispatcher.
type Request struct {
	// Tenant and Document identify whose budget the work draws on.
	Tenant   string
	Document string

	// Tier selects the compute tier.
	Tier Tier

	// EstimatedTokens is the token estimate used for rate-limit admission
	// and cost estimation.
	EstimatedTokens int

	// Priority carries the signals for priority scoring.
	Priority PriorityInputs

	// Payload is opaque to the dispatch core and handed unchanged to the
	// tier invoker.
	Payload any

	// DocumentCaps, when set, enforces the per-run document ceilings for
	// this request. Producers create one instance per document run and
	// share it across that run's requests.
	DocumentCaps *budget.DocumentCaps

	// SubmittedAt orders requests of equal priority. Zero means "now".
	SubmittedAt time.Time
}

// TierResult is what a successful tier invocation returns.
type TierResult struct {
	// Value is the opaque result handed back to the producer.
	Value any

	// ActualTokens is the real token usage. Zero means "as estimated".
	ActualTokens int

	// ActualCost is the real cost in USD. Negative means "as estimated".
	ActualCost float64
}

// Invoker performs the opaque external tier call.
//
// A rate-limit rejection by the tier is reported by returning an error
// wrapping ErrRateLimited; the Dispatcher retries those with backoff. Any
// other error is terminal for the request.
type Invoker interface {
	Invoke(ctx context.Context, tier Tier, payload any, estimatedTokens int) (*TierResult, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, tier Tier, payload any, estimatedTokens int) (*TierResult, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, tier Tier, payload any, estimatedTokens int) (*TierResult, error) {
	return f(ctx, tier, payload, estimatedTokens)
}

// Result is the terminal outcome of one dispatched request.
type Result struct {
	// ID is the request ID assigned at submit.
	ID string

	// State is the terminal state: Succeeded, Failed, or Canceled.
	State State

	// Value is the tier result value on success.
	Value any

	// Err classifies the failure (wraps one of the sentinel errors below).
	Err error

	// RetryCount is how many retries were attempted.
	RetryCount int

	// ReservedCost is the estimate held at admission check.
	ReservedCost float64

	// CommittedCost is the cost settled on success.
	CommittedCost float64

	// RefundedCost is the amount released on a non-success outcome.
	RefundedCost float64

	// QueueWait is how long the request sat queued before admission (or
	// eviction).
	QueueWait time.Duration
}

// Sentinel errors for the failure taxonomy. Producers classify outcomes
// with errors.Is.
var (
	// ErrBudgetExceeded mirrors the budget package sentinel: a document or
	// tenant cap was reached. Terminal, never retried.
	ErrBudgetExceeded = budget.ErrBudgetExceeded

	// ErrQueueSaturated signals producer-side backpressure: the tier's
	// queue is full. Terminal.
	ErrQueueSaturated = errors.New("queue saturated")

	// ErrQueueTimeout means the work waited past the tier's queue timeout
	// and was evicted. Terminal, budget refunded.
	ErrQueueTimeout = errors.New("queue timeout")

	// ErrRateLimited is the transient tier-reported rejection. Invokers
	// wrap it to trigger automatic bounded retry.
	ErrRateLimited = errors.New("tier rate limit rejected")

	// ErrRetryExhausted means the retry budget was spent on rate-limit
	// rejections. Terminal, budget refunded.
	ErrRetryExhausted = errors.New("retries exhausted")

	// ErrTierFailure classifies any non-rate-limit tier error. The
	// underlying error is surfaced verbatim as the Cause. Terminal,
	// budget refunded.
	ErrTierFailure = errors.New("tier call failed")

	// ErrCanceled means the producer canceled the request. Terminal,
	// budget refunded.
	ErrCanceled = errors.New("request canceled")

	// ErrUnknownTier is returned at submit for an unconfigured tier.
	ErrUnknownTier = errors.New("unknown tier")

	// ErrUnknownRequest is returned by Cancel for an ID the dispatcher is
	// not tracking.
	ErrUnknownRequest = errors.New("unknown request")
)

// Error is the structured failure detail surfaced to producers: the
// reason, how far retries got, and what happened to the money.
type Error struct {
	// Reason is the sentinel classifying the failure.
	Reason error

	// Tier is the tier the request targeted.
	Tier Tier

	// RetryCount is the number of retries attempted before failing.
	RetryCount int

	// Reserved and Refunded are the budget amounts held and released.
	Reserved float64
	Refunded float64

	// Cause is the underlying error, if any (e.g. the tier's error).
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && !errors.Is(e.Cause, e.Reason) {
		return fmt.Sprintf("dispatch to %s failed after %d retries: %v: %v", e.Tier, e.RetryCount, e.Reason, e.Cause)
	}
	return fmt.Sprintf("dispatch to %s failed after %d retries: %v", e.Tier, e.RetryCount, e.Reason)
}

// Unwrap exposes the sentinel for errors.Is chains.
func (e *Error) Unwrap() error {
	return e.Reason
}

// TierConfig is the static configuration for one tier.
type TierConfig struct {
	// RequestsPerMinute and TokensPerMinute are the external ceilings the
	// tier self-throttles against. Zero disables the check.
	RequestsPerMinute int
	TokensPerMinute   int

	// MaxConcurrent bounds simultaneously in-flight calls. Zero means
	// unbounded.
	MaxConcurrent int

	// QueueCapacity bounds the pending queue; a push past it fails with
	// ErrQueueSaturated.
	QueueCapacity int

	// QueueTimeout evicts items that have waited this long.
	QueueTimeout time.Duration

	// Workers is the tier's worker pool size. Zero defaults to
	// MaxConcurrent (or 1 if that is unbounded).
	Workers int

	// CostPerThousandTokens converts a token estimate into the cost
	// estimate reserved against budgets.
	CostPerThousandTokens float64
}

// EstimateCost returns the tier's cost estimate for a token count.
func (c TierConfig) EstimateCost(tokens int) float64 {
	return float64(tokens) / 1000.0 * c.CostPerThousandTokens
}

// RetryConfig is the retry policy for rate-limited calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retries after the first attempt.
	MaxRetries int

	// BackoffBase is the exponential base in seconds: the nth retry waits
	// base^n seconds plus jitter.
	BackoffBase float64

	// JitterMax bounds the uniform random jitter added to each wait.
	JitterMax time.Duration
}

// Config is the full dispatcher configuration.
type Config struct {
	// Tiers maps tier names to their static configuration. Only
	// configured tiers accept work.
	Tiers map[Tier]TierConfig

	// Retry is the shared retry policy.
	Retry RetryConfig
}
