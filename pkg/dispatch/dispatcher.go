package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"veridian-hq/callisto/pkg/dispatch/budget"
	"veridian-hq/callisto/pkg/dispatch/ratelimit"
)

// Handle is the producer's future for one submitted request. The result
// is available once Done is closed; Wait blocks for it.
type Handle struct {
	id   string
	done chan struct{}

	completeOnce sync.Once
	result       *Result

	mu         sync.Mutex
	canceled   bool
	execCancel context.CancelFunc
}

// ID returns the request ID assigned at submit.
func (h *Handle) ID() string {
	return h.id
}

// Done is closed when the request reaches a terminal outcome.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the terminal result, or nil if the request is still in
// flight. Callers wait on Done (or use Wait) first.
func (h *Handle) Result() *Result {
	select {
	case <-h.done:
		return h.result
	default:
		return nil
	}
}

// Wait blocks until the request reaches a terminal outcome or the context
// is done.
func (h *Handle) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete delivers the terminal result exactly once.
func (h *Handle) complete(result *Result) {
	h.completeOnce.Do(func() {
		h.result = result
		close(h.done)
	})
}

// requestCancel marks the request canceled and signals the executing call,
// if any. The request still runs to a terminal outcome.
func (h *Handle) requestCancel() {
	h.mu.Lock()
	h.canceled = true
	cancel := h.execCancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (h *Handle) isCanceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled
}

func (h *Handle) setExecCancel(cancel context.CancelFunc) {
	h.mu.Lock()
	h.execCancel = cancel
	h.mu.Unlock()
}

// Dispatcher orchestrates budget checks, priority scheduling, rate-limited
// admission, execution, and retries across all configured tiers. Tiers are
// fully independent: each has its own queue, limiter, and worker pool.
type Dispatcher struct {
	config  Config
	ledger  *budget.Ledger
	invoker Invoker
	metrics *Metrics
	logger  *slog.Logger

	schedulers map[Tier]*scheduler
	limiters   map[Tier]*ratelimit.TierLimiter

	// backoff computes retry delays; replaceable in tests.
	backoff func(RetryConfig, int) time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tracked map[string]*item
	started bool
}

// New creates a Dispatcher. The ledger and invoker are required; metrics
// and logger fall back to a private registry and slog.Default.
func New(config Config, ledger *budget.Ledger, invoker Invoker, metrics *Metrics, logger *slog.Logger) (*Dispatcher, error) {
	if len(config.Tiers) == 0 {
		return nil, fmt.Errorf("dispatcher requires at least one configured tier")
	}
	if ledger == nil {
		return nil, fmt.Errorf("dispatcher requires a budget ledger")
	}
	if invoker == nil {
		return nil, fmt.Errorf("dispatcher requires a tier invoker")
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default().With("component", "dispatch")
	}

	d := &Dispatcher{
		config:     config,
		ledger:     ledger,
		invoker:    invoker,
		metrics:    metrics,
		logger:     logger,
		backoff:    backoffDelay,
		schedulers: make(map[Tier]*scheduler),
		limiters:   make(map[Tier]*ratelimit.TierLimiter),
		tracked:    make(map[string]*item),
	}

	for tier, tierCfg := range config.Tiers {
		limiter := ratelimit.NewTierLimiter(ratelimit.Config{
			RequestsPerMinute: tierCfg.RequestsPerMinute,
			TokensPerMinute:   tierCfg.TokensPerMinute,
			MaxConcurrent:     tierCfg.MaxConcurrent,
		})
		d.limiters[tier] = limiter
		d.schedulers[tier] = newScheduler(tier, tierCfg, limiter, d.evictTimedOut)
	}

	return d, nil
}

// Start launches the per-tier worker pools. Submit is only valid after
// Start.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true
	d.ctx, d.cancel = context.WithCancel(ctx)

	for tier, sched := range d.schedulers {
		workers := d.config.Tiers[tier].Workers
		if workers <= 0 {
			workers = d.config.Tiers[tier].MaxConcurrent
		}
		if workers <= 0 {
			workers = 1
		}

		for i := 0; i < workers; i++ {
			d.wg.Add(1)
			go d.runWorker(tier, sched)
		}

		// Deadlines must fire even while every worker is busy executing,
		// which is exactly when the queue backs up.
		if sched.timeout > 0 {
			d.wg.Add(1)
			go d.runEvictor(sched)
		}

		d.logger.Info("tier workers started", "tier", tier, "workers", workers)
	}
}

// runEvictor periodically sweeps one tier's queue for timed-out items.
func (d *Dispatcher) runEvictor(sched *scheduler) {
	defer d.wg.Done()

	ticker := time.NewTicker(sched.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			sched.sweepExpired()
		}
	}
}

// Stop halts the workers, waits for in-flight calls to reach terminal
// outcomes, and fails everything still queued with a canceled result so no
// producer is left waiting and no reservation is left outstanding.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()

	for _, sched := range d.schedulers {
		for _, it := range sched.drain() {
			d.finish(it, StateCanceled, ErrCanceled, context.Canceled, time.Since(it.enqueuedAt))
		}
	}

	d.logger.Info("dispatcher stopped")
}

// Submit admits a request into the dispatch pipeline and returns a Handle
// for its result.
//
// Pre-queue terminal failures are returned synchronously: ErrUnknownTier,
// ErrBudgetExceeded (tenant or document cap), and ErrQueueSaturated (the
// backpressure signal). Any reservation taken before such a failure is
// refunded before Submit returns. Once Submit returns a Handle, the
// outcome is always delivered through it.
func (d *Dispatcher) Submit(req Request) (*Handle, error) {
	tierCfg, ok := d.config.Tiers[req.Tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, req.Tier)
	}

	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("dispatcher not started")
	}

	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}

	estimatedCost := tierCfg.EstimateCost(req.EstimatedTokens)
	d.metrics.submissions.WithLabelValues(string(req.Tier)).Inc()

	// Received → BudgetChecked: tenant caps first, then document caps.
	reservation, err := d.ledger.CheckAndReserve(req.Tenant, string(req.Tier), req.Document, estimatedCost)
	if err != nil {
		d.metrics.budgetDenials.WithLabelValues(string(req.Tier), "tenant").Inc()
		return nil, &Error{Reason: ErrBudgetExceeded, Tier: req.Tier, Cause: err}
	}

	var docRes *budget.DocumentReservation
	if req.DocumentCaps != nil {
		docRes, err = req.DocumentCaps.CheckAndReserve(string(req.Tier), estimatedCost)
		if err != nil {
			d.refundLedger(reservation)
			d.metrics.budgetDenials.WithLabelValues(string(req.Tier), "document").Inc()
			return nil, &Error{Reason: ErrBudgetExceeded, Tier: req.Tier, Cause: err}
		}
	}

	it := &item{
		id:            uuid.NewString(),
		req:           &req,
		score:         Score(req.Priority),
		submittedAt:   submittedAt,
		estimatedCost: estimatedCost,
		reservation:   reservation,
		docRes:        docRes,
	}
	it.handle = &Handle{id: it.id, done: make(chan struct{})}

	// Track before pushing so a fast worker's terminal untrack never races
	// the registration.
	d.mu.Lock()
	d.tracked[it.id] = it
	d.mu.Unlock()

	// BudgetChecked → Queued
	if err := d.schedulers[req.Tier].push(it); err != nil {
		d.untrack(it.id)
		d.refundAll(it)
		return nil, &Error{Reason: ErrQueueSaturated, Tier: req.Tier, Reserved: estimatedCost, Refunded: estimatedCost}
	}

	d.observeTier(req.Tier)
	return it.handle, nil
}

// Cancel cancels a request by ID. Queued work is removed and refunded
// immediately; executing work is signaled to stop but runs to a terminal
// outcome before its slot and budget are settled, so nothing is ever
// double-counted.
func (d *Dispatcher) Cancel(id string) error {
	d.mu.Lock()
	it, ok := d.tracked[id]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownRequest
	}

	if removed, wasQueued := d.schedulers[it.req.Tier].remove(id); wasQueued {
		d.finish(removed, StateCanceled, ErrCanceled, nil, time.Since(removed.enqueuedAt))
		d.observeTier(it.req.Tier)
		return nil
	}

	// Executing (or mid-transition): best effort.
	it.handle.requestCancel()
	return nil
}

// QueueDepths returns the current queue depth per tier.
func (d *Dispatcher) QueueDepths() map[Tier]int {
	depths := make(map[Tier]int, len(d.schedulers))
	for tier, sched := range d.schedulers {
		depths[tier] = sched.depth()
	}
	return depths
}

// UpdateTierCeilings applies new per-minute ceilings from cfg to the
// running limiters. Tiers absent from cfg keep their current ceilings.
// Queue capacities and concurrency limits are fixed at construction and
// are not touched.
func (d *Dispatcher) UpdateTierCeilings(cfg Config) {
	for tier, tierCfg := range cfg.Tiers {
		limiter, ok := d.limiters[tier]
		if !ok {
			continue
		}
		limiter.SetCeilings(tierCfg.RequestsPerMinute, tierCfg.TokensPerMinute)
		d.logger.Info("tier ceilings updated",
			"tier", tier,
			"requests_per_minute", tierCfg.RequestsPerMinute,
			"tokens_per_minute", tierCfg.TokensPerMinute,
		)
	}
}

// LimiterStatus returns the rate-limit window and in-flight snapshot for a
// tier.
func (d *Dispatcher) LimiterStatus(tier Tier) (ratelimit.Status, bool) {
	limiter, ok := d.limiters[tier]
	if !ok {
		return ratelimit.Status{}, false
	}
	return limiter.Status(), true
}

// runWorker is one tier worker: it loops popping admissible work and
// executing it until the dispatcher stops.
func (d *Dispatcher) runWorker(tier Tier, sched *scheduler) {
	defer d.wg.Done()

	for {
		it, err := sched.popWhenReady(d.ctx)
		if err != nil {
			return
		}
		d.execute(tier, it)
	}
}

// execute runs one admitted item. The caller (via popWhenReady) holds the
// tier's concurrency slot; execute releases it on every path.
func (d *Dispatcher) execute(tier Tier, it *item) {
	limiter := d.limiters[tier]
	queueWait := time.Since(it.enqueuedAt)

	d.metrics.queueWait.WithLabelValues(string(tier)).Observe(queueWait.Seconds())
	d.observeTier(tier)

	// Canceled while queued but past removal: settle without invoking.
	if it.handle.isCanceled() {
		limiter.Release()
		d.finish(it, StateCanceled, ErrCanceled, nil, queueWait)
		return
	}

	// Admitted → Executing
	execCtx, execCancel := context.WithCancel(d.ctx)
	it.handle.setExecCancel(execCancel)

	start := time.Now()
	result, err := d.invoker.Invoke(execCtx, tier, it.req.Payload, it.req.EstimatedTokens)
	d.metrics.execDuration.WithLabelValues(string(tier)).Observe(time.Since(start).Seconds())

	it.handle.setExecCancel(nil)
	execCancel()

	switch {
	case err == nil:
		d.succeed(tier, it, result, queueWait)

	case errors.Is(err, ErrRateLimited):
		// Executing → RetryScheduled, or RetryExhausted at the bound.
		limiter.Release()
		if it.retryCount >= d.config.Retry.MaxRetries {
			d.finish(it, StateFailed, ErrRetryExhausted, err, queueWait)
			d.observeTier(tier)
			return
		}
		delay := d.backoff(d.config.Retry, it.retryCount)
		it.retryCount++
		d.metrics.retries.WithLabelValues(string(tier)).Inc()
		d.logger.Debug("retry scheduled",
			"tier", tier, "request", it.id, "retry", it.retryCount, "delay", delay)
		d.scheduleRetry(tier, it, delay)

	case it.handle.isCanceled() && errors.Is(err, context.Canceled):
		limiter.Release()
		d.finish(it, StateCanceled, ErrCanceled, err, queueWait)
		d.observeTier(tier)

	default:
		// Executing → Failed: surfaced verbatim, never retried.
		limiter.Release()
		d.finish(it, StateFailed, ErrTierFailure, err, queueWait)
		d.observeTier(tier)
	}
}

// succeed commits budgets and delivers the result.
func (d *Dispatcher) succeed(tier Tier, it *item, result *TierResult, queueWait time.Duration) {
	limiter := d.limiters[tier]

	actualCost := result.ActualCost
	if actualCost < 0 {
		actualCost = it.estimatedCost
	}
	if result.ActualTokens > it.req.EstimatedTokens {
		limiter.RecordTokens(result.ActualTokens - it.req.EstimatedTokens)
	}

	if err := d.ledger.Commit(it.reservation, actualCost); err != nil {
		d.logger.Error("ledger commit failed", "request", it.id, "error", err)
	}
	if it.docRes != nil {
		if err := it.req.DocumentCaps.Commit(it.docRes, actualCost); err != nil {
			d.logger.Error("document caps commit failed", "request", it.id, "error", err)
		}
	}

	limiter.Release()

	d.untrack(it.id)
	d.metrics.outcomes.WithLabelValues(string(tier), string(StateSucceeded)).Inc()
	d.observeTier(tier)

	it.handle.complete(&Result{
		ID:            it.id,
		State:         StateSucceeded,
		Value:         result.Value,
		RetryCount:    it.retryCount,
		ReservedCost:  it.estimatedCost,
		CommittedCost: actualCost,
		QueueWait:     queueWait,
	})
}

// scheduleRetry re-enqueues the item at its original priority after the
// backoff delay. The item holds no concurrency slot while it waits, so
// other work flows freely.
func (d *Dispatcher) scheduleRetry(tier Tier, it *item, delay time.Duration) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-d.ctx.Done():
			d.finish(it, StateCanceled, ErrCanceled, d.ctx.Err(), 0)
			return
		case <-timer.C:
		}

		if it.handle.isCanceled() {
			d.finish(it, StateCanceled, ErrCanceled, nil, 0)
			return
		}

		// RetryScheduled → Queued, same priority, same submission time.
		if err := d.schedulers[tier].push(it); err != nil {
			d.finish(it, StateFailed, ErrQueueSaturated, err, 0)
			return
		}
		d.observeTier(tier)
	}()
}

// evictTimedOut is the scheduler's callback for items that waited past the
// tier's queue timeout.
func (d *Dispatcher) evictTimedOut(it *item) {
	d.metrics.evictions.WithLabelValues(string(it.req.Tier)).Inc()
	d.finish(it, StateFailed, ErrQueueTimeout, nil, time.Since(it.enqueuedAt))
}

// finish settles a non-success terminal outcome: refund all outstanding
// reservations, record metrics, and deliver the structured failure.
func (d *Dispatcher) finish(it *item, state State, reason, cause error, queueWait time.Duration) {
	refunded := d.refundAll(it)
	d.untrack(it.id)
	d.metrics.outcomes.WithLabelValues(string(it.req.Tier), string(state)).Inc()

	it.handle.complete(&Result{
		ID:    it.id,
		State: state,
		Err: &Error{
			Reason:     reason,
			Tier:       it.req.Tier,
			RetryCount: it.retryCount,
			Reserved:   it.estimatedCost,
			Refunded:   refunded,
			Cause:      cause,
		},
		RetryCount:   it.retryCount,
		ReservedCost: it.estimatedCost,
		RefundedCost: refunded,
		QueueWait:    queueWait,
	})
}

// refundAll releases the item's ledger and document reservations. Returns
// the refunded amount.
func (d *Dispatcher) refundAll(it *item) float64 {
	refunded := 0.0
	if it.reservation != nil {
		if err := d.ledger.Refund(it.reservation); err != nil {
			d.logger.Error("ledger refund failed", "request", it.id, "error", err)
		} else {
			refunded = it.estimatedCost
		}
	}
	if it.docRes != nil {
		if err := it.req.DocumentCaps.Refund(it.docRes); err != nil {
			d.logger.Error("document caps refund failed", "request", it.id, "error", err)
		}
	}
	return refunded
}

func (d *Dispatcher) refundLedger(res *budget.Reservation) {
	if err := d.ledger.Refund(res); err != nil {
		d.logger.Error("ledger refund failed", "error", err)
	}
}

func (d *Dispatcher) untrack(id string) {
	d.mu.Lock()
	delete(d.tracked, id)
	d.mu.Unlock()
}

// observeTier refreshes the tier's depth and in-flight gauges.
func (d *Dispatcher) observeTier(tier Tier) {
	d.metrics.queueDepth.WithLabelValues(string(tier)).Set(float64(d.schedulers[tier].depth()))
	d.metrics.inFlight.WithLabelValues(string(tier)).Set(float64(d.limiters[tier].Status().InFlight))
}
