package tangguh

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/atomic"

	internalbackoff "github.com/adiwarna/tangguh/internal/backoff"
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait first. attempt is 0 for the first retry and must stay below the
// policy's limit.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	DelayFor(attempt int) time.Duration
}

// ExponentialRetryPolicy retries transient failures (Network, Timeout,
// Server >= 500) with exponential backoff and bounded jitter. Cancelled,
// Decode, Validation and CircuitOpen errors are never retried.
type ExponentialRetryPolicy struct {
	maxRetries int
	calculator *internalbackoff.Calculator
}

// NewExponentialRetryPolicy builds the default policy: delay for attempt n
// is min(initial*multiplier^n, max) plus jitter in [0, initial).
func NewExponentialRetryPolicy(maxRetries int, initial, max time.Duration, multiplier float64) *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxRetries: maxRetries,
		calculator: internalbackoff.NewCalculator(
			internalbackoff.ExponentialJitterStrategy{}, initial, max, multiplier),
	}
}

// NewDecorrelatedRetryPolicy is like NewExponentialRetryPolicy but uses
// AWS-style decorrelated jitter.
func NewDecorrelatedRetryPolicy(maxRetries int, initial, max time.Duration) *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		maxRetries: maxRetries,
		calculator: internalbackoff.NewCalculator(
			internalbackoff.DecorrelatedJitterStrategy{}, initial, max, 3.0),
	}
}

// ShouldRetry implements RetryPolicy.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxRetries {
		return false
	}
	return IsTransient(err)
}

// DelayFor implements RetryPolicy.
func (p *ExponentialRetryPolicy) DelayFor(attempt int) time.Duration {
	return p.calculator.Delay(attempt)
}

// MaxRetries returns the retry limit.
func (p *ExponentialRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// parseRetryAfter parses a Retry-After header value in either delay-seconds
// or HTTP-date form. Results above one hour are capped; unparseable values
// yield zero.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		delay := time.Duration(seconds) * time.Second
		if delay > time.Hour {
			delay = time.Hour
		}
		return delay
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

// RetryBudget caps the total number of retries issued within a rolling
// window, protecting downstreams from retry storms that per-request limits
// alone cannot prevent.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     atomic.Int64
	windowStart atomic.Int64
}

// NewRetryBudget allows at most maxRetries retries per window.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	rb := &RetryBudget{
		maxRetries: int64(maxRetries),
		perWindow:  perWindow,
	}
	rb.windowStart.Store(time.Now().UnixNano())
	return rb
}

// Allow consumes one unit of budget, resetting the window when it has
// elapsed. Returns false when the budget is exhausted.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := rb.windowStart.Load()

	if now-windowStart >= int64(rb.perWindow) {
		if rb.windowStart.CompareAndSwap(windowStart, now) {
			rb.current.Store(0)
		}
	}

	if rb.current.Load() >= rb.maxRetries {
		return false
	}
	return rb.current.Inc() <= rb.maxRetries
}

// Stats returns the consumed budget, the limit, and the window start.
func (rb *RetryBudget) Stats() (current, max int64, windowStart time.Time) {
	return rb.current.Load(), rb.maxRetries, time.Unix(0, rb.windowStart.Load())
}
