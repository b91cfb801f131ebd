package ratelimit

import (
	"sync"
	"time"
)

// Window is a sliding-window admission counter over a trailing time period.
//
// It tracks two quantities per bucket: the number of admitted requests and
// the sum of admitted tokens. Old buckets outside the window are pruned on
// every operation, so the counters always reflect the trailing window and
// never suffer the reset spike of a fixed window.
//
// # Algorithm
//
//  1. Prune buckets older than the window duration
//  2. Sum remaining buckets
//  3. Admit only if both sums plus the candidate stay under their ceilings
//
// Uses a circular buffer with fixed granularity to bound memory: a 1-minute
// window with 1-second buckets uses 60 buckets.
type Window struct {
	window     time.Duration
	bucketSize time.Duration

	maxRequests int64 // 0 = unlimited
	maxTokens   int64 // 0 = unlimited

	buckets []windowBucket
	head    int

	now func() time.Time

	mu sync.Mutex
}

// windowBucket is a single time-stamped counter bucket.
type windowBucket struct {
	timestamp time.Time
	requests  int64
	tokens    int64
}

// NewWindow creates a sliding admission window.
//
// maxRequests and maxTokens are the per-window ceilings; zero disables the
// corresponding check. window and bucketSize control duration and
// granularity; zero values default to one minute and one second.
func NewWindow(maxRequests, maxTokens int, window, bucketSize time.Duration) *Window {
	if window <= 0 {
		window = time.Minute
	}
	if bucketSize <= 0 {
		bucketSize = time.Second
	}

	numBuckets := int(window / bucketSize)
	if numBuckets == 0 {
		numBuckets = 1
	}

	return &Window{
		window:      window,
		bucketSize:  bucketSize,
		maxRequests: int64(maxRequests),
		maxTokens:   int64(maxTokens),
		buckets:     make([]windowBucket, numBuckets),
		now:         time.Now,
	}
}

// SetCeilings replaces the request and token ceilings. Bucket contents are
// kept, so the new ceilings apply to the trailing window immediately.
func (w *Window) SetCeilings(maxRequests, maxTokens int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.maxRequests = int64(maxRequests)
	w.maxTokens = int64(maxTokens)
}

// CanAdmit reports whether admitting one request with the given token count
// would stay within both the request and token ceilings. It does not
// consume capacity.
func (w *Window) CanAdmit(tokens int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.canAdmitLocked(int64(tokens))
}

// Consume records one admitted request with the given token count in the
// current bucket. It never fails; callers gate on CanAdmit or TryConsume.
func (w *Window) Consume(tokens int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.consumeLocked(int64(tokens))
}

// TryConsume atomically checks admission and, if allowed, consumes capacity
// for one request with the given token count. This closes the
// check-then-act race between CanAdmit and Consume.
func (w *Window) TryConsume(tokens int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.canAdmitLocked(int64(tokens)) {
		return false
	}
	w.consumeLocked(int64(tokens))
	return true
}

// AddTokens records extra token usage in the current bucket without
// counting a request. Used to true up the window when a call consumed more
// tokens than its admission-time estimate.
func (w *Window) AddTokens(extra int) {
	if extra <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)
	b := w.findOrCreateBucketLocked(now)
	b.tokens += int64(extra)
}

// Usage returns the request count and token sum in the current trailing
// window.
func (w *Window) Usage() (requests, tokens int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(w.now())
	return w.sumLocked()
}

// Reset clears all buckets. This is primarily for testing.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.buckets {
		w.buckets[i] = windowBucket{}
	}
	w.head = 0
}

func (w *Window) canAdmitLocked(tokens int64) bool {
	w.pruneLocked(w.now())

	reqSum, tokSum := w.sumLocked()
	if w.maxRequests > 0 && reqSum+1 > w.maxRequests {
		return false
	}
	if w.maxTokens > 0 && tokSum+tokens > w.maxTokens {
		return false
	}
	return true
}

func (w *Window) consumeLocked(tokens int64) {
	now := w.now()
	w.pruneLocked(now)

	b := w.findOrCreateBucketLocked(now)
	b.requests++
	b.tokens += tokens
}

func (w *Window) sumLocked() (requests, tokens int64) {
	for i := range w.buckets {
		if !w.buckets[i].timestamp.IsZero() {
			requests += w.buckets[i].requests
			tokens += w.buckets[i].tokens
		}
	}
	return requests, tokens
}

// pruneLocked removes buckets older than the window. Caller must hold mu.
func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)

	for i := range w.buckets {
		if !w.buckets[i].timestamp.IsZero() && w.buckets[i].timestamp.Before(cutoff) {
			w.buckets[i] = windowBucket{}
		}
	}
}

// findOrCreateBucketLocked returns the bucket for the current time,
// creating one in an empty or oldest slot if needed. Caller must hold mu.
func (w *Window) findOrCreateBucketLocked(now time.Time) *windowBucket {
	bucketTime := now.Truncate(w.bucketSize)

	if w.buckets[w.head].timestamp.Equal(bucketTime) {
		return &w.buckets[w.head]
	}

	for i := range w.buckets {
		if w.buckets[i].timestamp.Equal(bucketTime) {
			return &w.buckets[i]
		}
	}

	targetIdx := -1
	for i := range w.buckets {
		if w.buckets[i].timestamp.IsZero() {
			targetIdx = i
			break
		}
	}

	if targetIdx == -1 {
		oldestIdx := 0
		oldestTime := w.buckets[0].timestamp
		for i := 1; i < len(w.buckets); i++ {
			if w.buckets[i].timestamp.Before(oldestTime) {
				oldestIdx = i
				oldestTime = w.buckets[i].timestamp
			}
		}
		targetIdx = oldestIdx
	}

	w.buckets[targetIdx] = windowBucket{timestamp: bucketTime}
	w.head = targetIdx

	return &w.buckets[targetIdx]
}
