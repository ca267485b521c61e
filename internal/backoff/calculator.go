package backoff

import "time"

// Calculator binds a Strategy to fixed retry parameters so the retry policy
// computes delays with a single call.
type Calculator struct {
	strategy   Strategy
	initial    time.Duration
	max        time.Duration
	multiplier float64
}

// NewCalculator creates a calculator with the given strategy and parameters.
func NewCalculator(strategy Strategy, initial, max time.Duration, multiplier float64) *Calculator {
	return &Calculator{
		strategy:   strategy,
		initial:    initial,
		max:        max,
		multiplier: multiplier,
	}
}

// Delay returns the backoff delay before retry attempt n (0-based).
func (c *Calculator) Delay(attempt int) time.Duration {
	return c.strategy.Calculate(attempt, c.initial, c.max, c.multiplier)
}

// Strategy returns the strategy in use.
func (c *Calculator) Strategy() Strategy {
	return c.strategy
}
