package dispatch

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"veridian-hq/callisto/pkg/dispatch/budget"
	"veridian-hq/callisto/pkg/dispatch/ratelimit"
)

// defaultPollInterval is how often a blocked PopWhenReady rechecks window
// capacity. Pushes wake the pop immediately; the tick only matters while
// waiting for the sliding window to free up.
const defaultPollInterval = 20 * time.Millisecond

// item is one queued request plus the dispatch state that travels with it.
// The Dispatcher owns all of it for the lifetime of the call.
type item struct {
	id          string
	req         *Request
	score       int
	submittedAt time.Time
	seq         uint64

	enqueuedAt time.Time
	deadline   time.Time
	index      int // heap position, -1 when not queued

	retryCount    int
	estimatedCost float64
	reservation   *budget.Reservation
	docRes        *budget.DocumentReservation
	handle        *Handle
}

// scheduler is the per-tier priority queue. Ordering is (score descending,
// submission time ascending, sequence ascending); the sequence breaks exact
// timestamp ties deterministically.
//
// PopWhenReady is the tier workers' sole blocking point: it returns the
// head item only once the tier limiter admits it, consuming the
// concurrency slot and window capacity atomically with the pop.
type scheduler struct {
	tier         Tier
	capacity     int
	timeout      time.Duration
	limiter      *ratelimit.TierLimiter
	pollInterval time.Duration

	// onTimeout is invoked (without the lock held) for items evicted past
	// their deadline.
	onTimeout func(*item)

	mu     sync.Mutex
	items  itemHeap
	byID   map[string]*item
	seq    uint64
	notify chan struct{}
}

func newScheduler(tier Tier, cfg TierConfig, limiter *ratelimit.TierLimiter, onTimeout func(*item)) *scheduler {
	return &scheduler{
		tier:         tier,
		capacity:     cfg.QueueCapacity,
		timeout:      cfg.QueueTimeout,
		limiter:      limiter,
		pollInterval: defaultPollInterval,
		onTimeout:    onTimeout,
		byID:         make(map[string]*item),
		notify:       make(chan struct{}, 1),
	}
}

// push enqueues an item. Fails with ErrQueueSaturated at capacity; the
// queue never grows unbounded.
func (s *scheduler) push(it *item) error {
	s.mu.Lock()

	if s.capacity > 0 && s.items.Len() >= s.capacity {
		s.mu.Unlock()
		return ErrQueueSaturated
	}

	s.seq++
	it.seq = s.seq
	it.enqueuedAt = time.Now()
	if s.timeout > 0 {
		it.deadline = it.enqueuedAt.Add(s.timeout)
	} else {
		it.deadline = time.Time{}
	}

	heap.Push(&s.items, it)
	s.byID[it.id] = it
	s.mu.Unlock()

	// wake a blocked pop
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// popWhenReady blocks until the highest-priority item is admissible, then
// returns it with the limiter's slot and window capacity already consumed.
func (s *scheduler) popWhenReady(ctx context.Context) (*item, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if it, ok := s.tryPop(); ok {
			return it, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		case <-ticker.C:
		}
	}
}

// tryPop evicts expired items, then attempts to admit the head.
func (s *scheduler) tryPop() (*item, bool) {
	s.sweepExpired()

	s.mu.Lock()
	var popped *item
	if s.items.Len() > 0 {
		head := s.items[0]
		if s.limiter.TryAdmit(head.req.EstimatedTokens) {
			heap.Pop(&s.items)
			delete(s.byID, head.id)
			popped = head
		}
	}
	s.mu.Unlock()

	return popped, popped != nil
}

// sweepExpired evicts every item past its deadline. The whole queue is
// swept, not just the head: a low-priority item buried behind a stream of
// high-priority work must be evicted at its deadline, not starved
// indefinitely. Queue depth is bounded by capacity, so the sweep is
// bounded too.
func (s *scheduler) sweepExpired() {
	if s.timeout <= 0 {
		return
	}

	s.mu.Lock()
	var expired []*item
	now := time.Now()
	for _, it := range s.items {
		if !it.deadline.IsZero() && !now.Before(it.deadline) {
			expired = append(expired, it)
		}
	}
	for _, it := range expired {
		heap.Remove(&s.items, it.index)
		delete(s.byID, it.id)
	}
	s.mu.Unlock()

	for _, it := range expired {
		s.onTimeout(it)
	}
}

// remove takes a queued item out of the queue, for cancellation. Returns
// false if the item is not queued (it may already be executing or done).
func (s *scheduler) remove(id string) (*item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	heap.Remove(&s.items, it.index)
	delete(s.byID, id)
	return it, true
}

// drain removes and returns every queued item, for shutdown settlement.
func (s *scheduler) drain() []*item {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := make([]*item, 0, s.items.Len())
	for s.items.Len() > 0 {
		it := heap.Pop(&s.items).(*item)
		delete(s.byID, it.id)
		drained = append(drained, it)
	}
	return drained
}

// depth returns the number of queued items, for observability.
func (s *scheduler) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

// itemHeap implements heap.Interface ordered by (score desc, submittedAt
// asc, seq asc).
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	if !h[i].submittedAt.Equal(h[j].submittedAt) {
		return h[i].submittedAt.Before(h[j].submittedAt)
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
