package ratelimit

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrQueueCleared rejects pending work when ClearQueue is called.
	ErrQueueCleared = errors.New("ratelimit: queue cleared")
	// ErrClosed is returned by Execute after Close.
	ErrClosed = errors.New("ratelimit: limiter is closed")
)

// refillTick is how often queued work is re-examined for newly refilled
// tokens. The bucket itself refills lazily; the tick only wakes the
// drain loop.
const refillTick = 50 * time.Millisecond

// Stats is a snapshot of limiter activity.
type Stats struct {
	Queued   int   // items currently waiting
	InFlight int   // items currently executing
	Executed int64 // completed items, success or failure
	Retried  int64 // retry attempts performed
	Rejected int64 // items rejected before execution (cleared, cancelled)
}

// Limiter executes units of work under a token bucket, a priority queue,
// and a concurrency ceiling, with retry/backoff for retryable failures.
type Limiter struct {
	key   string
	cfg   Config
	store BucketStore

	mu          sync.Mutex
	q           priorityQueue
	seq         uint64
	inFlight    int
	draining    bool // reentrancy flag: one drain pass at a time
	closed      bool
	idleWaiters []chan struct{}
	executed    int64
	retried     int64
	rejected    int64

	stop     chan struct{}
	stopOnce sync.Once

	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func()
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore sets the bucket store. Defaults to a process-local memory
// store; pass a Redis-backed store to share bucket state across
// instances.
func WithStore(store BucketStore) Option {
	return func(l *Limiter) {
		if store != nil {
			l.store = store
		}
	}
}

// WithOnRetry registers a callback invoked once per retry attempt, for
// external counters.
func WithOnRetry(fn func()) Option {
	return func(l *Limiter) {
		l.onRetry = fn
	}
}

// New creates a Limiter. key identifies the bucket in the store,
// typically the provider name.
func New(key string, cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.ValidateAndPrepare(); err != nil {
		return nil, err
	}
	l := &Limiter{
		key:   key,
		cfg:   cfg,
		store: NewMemoryBucketStore(),
		stop:  make(chan struct{}),
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.refillLoop()
	return l, nil
}

// Execute queues fn at the given priority (lower runs first) and blocks
// until it completes, is rejected, or ctx is done. Retryable failures
// (connection reset/timeout, HTTP 5xx, 429) are retried with backoff up
// to MaxRetries; everything else rejects immediately.
func (l *Limiter) Execute(ctx context.Context, fn Func, priority int) (any, error) {
	if fn == nil {
		return nil, errors.New("ratelimit: fn is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	it := &item{
		id:         uuid.NewString(),
		priority:   priority,
		enqueuedAt: time.Now(),
		ctx:        ctx,
		run:        fn,
		done:       make(chan outcome, 1),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.seq++
	it.seq = l.seq
	heap.Push(&l.q, it)
	l.mu.Unlock()

	l.kick()

	select {
	case out := <-it.done:
		return out.value, out.err
	case <-ctx.Done():
		// The item stays queued; the drain loop discards it on dequeue.
		return nil, ctx.Err()
	}
}

// kick starts a drain pass unless one is already running.
func (l *Limiter) kick() {
	l.mu.Lock()
	if l.draining || l.closed {
		l.mu.Unlock()
		return
	}
	l.draining = true
	l.mu.Unlock()
	go l.drain()
}

// drain dispatches queued work while tokens and concurrency slots are
// available. Only one drain pass runs at a time; it is re-invoked by the
// refill tick and by in-flight completions.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		if l.closed || l.q.Len() == 0 || l.inFlight >= l.cfg.ConcurrentRequests {
			l.draining = false
			l.mu.Unlock()
			return
		}
		head := l.q[0]
		if head.ctx.Err() != nil {
			// abandoned while queued
			heap.Pop(&l.q)
			l.rejected++
			l.notifyIfIdleLocked()
			l.mu.Unlock()
			head.done <- outcome{err: head.ctx.Err()}
			continue
		}
		l.mu.Unlock()

		ok, err := l.store.Take(context.Background(), l.key, l.cfg.BurstLimit, l.cfg.RequestsPerSecond)
		if err != nil {
			// Fail closed: reject the head rather than bypass the limit.
			l.mu.Lock()
			if l.q.Len() == 0 {
				l.mu.Unlock()
				continue
			}
			it := heap.Pop(&l.q).(*item)
			l.rejected++
			l.notifyIfIdleLocked()
			l.mu.Unlock()
			it.done <- outcome{err: err}
			continue
		}
		if !ok {
			// No token yet; the refill tick will wake us.
			l.mu.Lock()
			l.draining = false
			l.mu.Unlock()
			return
		}

		// Dispatch whatever is at the head now; a higher-priority item
		// pushed since the peek rightly takes the token.
		l.mu.Lock()
		if l.q.Len() == 0 {
			// Queue was cleared between Take and dispatch; token wasted.
			l.mu.Unlock()
			continue
		}
		it := heap.Pop(&l.q).(*item)
		l.inFlight++
		l.mu.Unlock()
		go l.runItem(it)
	}
}

// runItem executes one dispatched item with retry/backoff, delivers the
// outcome, and frees the concurrency slot.
func (l *Limiter) runItem(it *item) {
	value, err := l.attempt(it)
	it.done <- outcome{value: value, err: err}

	l.mu.Lock()
	l.inFlight--
	l.executed++
	l.notifyIfIdleLocked()
	l.mu.Unlock()

	l.kick()
}

// attempt runs the item, retrying retryable errors with backoff.
func (l *Limiter) attempt(it *item) (any, error) {
	for {
		value, err := it.run(it.ctx)
		if err == nil {
			return value, nil
		}
		if !IsRetryable(err) || it.retries >= l.cfg.MaxRetries {
			return nil, err
		}

		it.retries++
		l.mu.Lock()
		l.retried++
		l.mu.Unlock()
		if l.onRetry != nil {
			l.onRetry()
		}

		delay := backoffDelay(l.cfg.BackoffStrategy, it.retries)
		log.Debug().
			Str("key", l.key).
			Str("item_id", it.id).
			Int("attempt", it.retries).
			Dur("backoff", delay).
			Err(err).
			Msg("retrying after retryable error")

		if serr := l.sleep(it.ctx, delay); serr != nil {
			return nil, serr
		}
	}
}

// WaitForEmpty blocks until the queue and the in-flight count both reach
// zero, for graceful shutdown.
func (l *Limiter) WaitForEmpty(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.q.Len() == 0 && l.inFlight == 0 {
			l.mu.Unlock()
			return nil
		}
		ch := make(chan struct{})
		l.idleWaiters = append(l.idleWaiters, ch)
		l.mu.Unlock()

		select {
		case <-ch:
			// re-check; new work may have arrived
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ClearQueue rejects every pending item with ErrQueueCleared and returns
// how many were rejected. Cancellation is immediate and total; in-flight
// work is not interrupted.
func (l *Limiter) ClearQueue() int {
	l.mu.Lock()
	items := make([]*item, 0, l.q.Len())
	for l.q.Len() > 0 {
		items = append(items, heap.Pop(&l.q).(*item))
	}
	l.rejected += int64(len(items))
	l.notifyIfIdleLocked()
	l.mu.Unlock()

	for _, it := range items {
		it.done <- outcome{err: ErrQueueCleared}
	}
	if len(items) > 0 {
		log.Warn().Str("key", l.key).Int("cleared", len(items)).Msg("rate limit queue cleared")
	}
	return len(items)
}

// Close stops the refill loop and clears the queue. Execute returns
// ErrClosed afterwards.
func (l *Limiter) Close() error {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.stop)
		l.ClearQueue()
	})
	return nil
}

// GetStats returns a snapshot of limiter activity.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Queued:   l.q.Len(),
		InFlight: l.inFlight,
		Executed: l.executed,
		Retried:  l.retried,
		Rejected: l.rejected,
	}
}

// notifyIfIdleLocked wakes WaitForEmpty callers once fully idle.
// Caller must hold l.mu.
func (l *Limiter) notifyIfIdleLocked() {
	if l.q.Len() != 0 || l.inFlight != 0 {
		return
	}
	for _, ch := range l.idleWaiters {
		close(ch)
	}
	l.idleWaiters = nil
}

// refillLoop wakes the drain loop periodically so queued work observes
// newly refilled tokens.
func (l *Limiter) refillLoop() {
	ticker := time.NewTicker(refillTick)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			pending := l.q.Len() > 0
			l.mu.Unlock()
			if pending {
				l.kick()
			}
		}
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
