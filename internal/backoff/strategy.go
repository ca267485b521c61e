package backoff

import (
	"math/rand"
	"time"
)

// Strategy is a backoff calculation algorithm.
type Strategy interface {
	// Calculate returns the delay before retry attempt n (0-based).
	Calculate(attempt int, initial, max time.Duration, multiplier float64) time.Duration
}

// ExponentialJitterStrategy grows the delay geometrically and adds uniform
// jitter drawn from [0, initial) to desynchronize concurrently retrying
// clients. The final delay never exceeds max.
type ExponentialJitterStrategy struct{}

// Calculate implements Strategy. The delay for attempt n lies in
// [initial*multiplier^n, initial*multiplier^n + initial), capped at max.
func (s ExponentialJitterStrategy) Calculate(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(initial) * pow(multiplier, attempt))
	if delay < 0 || delay > max {
		delay = max
	}

	if initial > 0 {
		delay += time.Duration(rand.Int63n(int64(initial)))
	}
	if delay > max {
		delay = max
	}
	return delay
}

// DecorrelatedJitterStrategy implements decorrelated jitter as described in
// the AWS architecture blog. It yields smoother tail latencies than plain
// exponential jitter under heavy contention.
type DecorrelatedJitterStrategy struct{}

// Calculate implements Strategy: a delay drawn uniformly from
// [initial, min(max, initial*3^attempt)].
func (s DecorrelatedJitterStrategy) Calculate(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 0 {
		return initial
	}
	// Prevent overflow by limiting attempt
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initial)
	upper := base * pow(3.0, attempt)

	maxF := float64(max)
	if upper > maxF || upper < 0 {
		upper = maxF
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

// Pow exposes integer exponentiation for callers that mirror the strategy
// math in validation or tests.
func Pow(base float64, exponent int) float64 {
	return pow(base, exponent)
}
