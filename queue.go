package tangguh

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Queue bounds the number of in-flight requests and the rate at which new
// ones are admitted. Acquire blocks until a concurrency slot and a rate
// token are both available, the caller's context fires, or the per-acquire
// timeout elapses. Waiters are served in arrival order (the semaphore keeps
// a FIFO waiter list), so no request is perpetually overtaken by newer
// arrivals.
type Queue struct {
	sem            *semaphore.Weighted
	limiter        *rate.Limiter
	maxConcurrency int
	acquireTimeout time.Duration

	waiting atomic.Int64
	held    atomic.Int64
	closed  atomic.Bool
}

// Slot is a logical permit for one in-flight request. Release it on every
// exit path; Release is idempotent.
type Slot struct {
	queue    *Queue
	released atomic.Bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueRateLimit adds a token bucket: burst is the bucket capacity, rps
// the steady refill rate in requests per second.
func WithQueueRateLimit(rps float64, burst int) QueueOption {
	return func(q *Queue) {
		q.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithQueueAcquireTimeout bounds how long a single Acquire may wait.
func WithQueueAcquireTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.acquireTimeout = d
	}
}

// NewQueue creates a queue admitting up to maxConcurrency concurrent
// requests, with no rate limit unless WithQueueRateLimit is given.
func NewQueue(maxConcurrency int, opts ...QueueOption) *Queue {
	if maxConcurrency <= 0 {
		maxConcurrency = 100
	}
	q := &Queue{
		sem:            semaphore.NewWeighted(int64(maxConcurrency)),
		maxConcurrency: maxConcurrency,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Acquire obtains a slot, blocking in FIFO order. The returned error is a
// typed ClientError: Timeout when a deadline fired, Cancelled when the
// caller's context was cancelled, RateLimit when the bucket can never admit
// the request before its deadline, Validation after Close.
func (q *Queue) Acquire(ctx context.Context) (*Slot, error) {
	if q.closed.Load() {
		return nil, newClientError(ErrorTypeValidation, "queue is closed", ErrClientClosed)
	}

	if q.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.acquireTimeout)
		defer cancel()
	}

	q.waiting.Inc()
	err := q.sem.Acquire(ctx, 1)
	q.waiting.Dec()
	if err != nil {
		return nil, classifyContextError(ctx)
	}

	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			q.sem.Release(1)
			if ctx.Err() != nil {
				return nil, classifyContextError(ctx)
			}
			// rate.Limiter refuses waits that cannot finish before the
			// deadline.
			return nil, newClientError(ErrorTypeRateLimit, "rate token unavailable before deadline", err)
		}
	}

	q.held.Inc()
	return &Slot{queue: q}, nil
}

// Release returns the slot to the queue, waking the longest-waiting
// request. Safe to call more than once.
func (s *Slot) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	s.queue.held.Dec()
	s.queue.sem.Release(1)
}

// Close rejects further Acquire calls. In-flight slots may still be
// released.
func (q *Queue) Close() {
	q.closed.Store(true)
}

// Waiting returns the number of callers blocked in Acquire.
func (q *Queue) Waiting() int64 {
	return q.waiting.Load()
}

// Held returns the number of outstanding slots.
func (q *Queue) Held() int64 {
	return q.held.Load()
}

// MaxConcurrency returns the configured concurrency bound.
func (q *Queue) MaxConcurrency() int {
	return q.maxConcurrency
}

// RateTokens returns the tokens currently available in the bucket, or -1
// when rate limiting is disabled.
func (q *Queue) RateTokens() float64 {
	if q.limiter == nil {
		return -1
	}
	return q.limiter.Tokens()
}
