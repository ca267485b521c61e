package backoff

import (
	"testing"
	"time"
)

func TestExponentialJitterBounds(t *testing.T) {
	s := ExponentialJitterStrategy{}
	initial := 100 * time.Millisecond
	max := 10 * time.Second

	for attempt := 0; attempt < 6; attempt++ {
		base := initial << attempt
		for i := 0; i < 200; i++ {
			delay := s.Calculate(attempt, initial, max, 2.0)
			if delay < base {
				t.Fatalf("attempt %d: delay %v below base %v", attempt, delay, base)
			}
			if delay >= base+initial {
				t.Fatalf("attempt %d: delay %v at or above base+jitter %v", attempt, delay, base+initial)
			}
		}
	}
}

func TestExponentialJitterCap(t *testing.T) {
	s := ExponentialJitterStrategy{}
	initial := 100 * time.Millisecond
	max := 500 * time.Millisecond

	for i := 0; i < 200; i++ {
		if delay := s.Calculate(10, initial, max, 2.0); delay > max {
			t.Fatalf("delay %v exceeds max %v", delay, max)
		}
	}
}

func TestExponentialJitterNegativeAttempt(t *testing.T) {
	s := ExponentialJitterStrategy{}
	delay := s.Calculate(-5, 100*time.Millisecond, time.Second, 2.0)
	if delay < 100*time.Millisecond || delay >= 200*time.Millisecond {
		t.Fatalf("negative attempt delay %v, want attempt-0 window", delay)
	}
}

func TestExponentialJitterOverflowClamped(t *testing.T) {
	s := ExponentialJitterStrategy{}
	max := 30 * time.Second
	// Huge attempts would overflow float math without clamping.
	for _, attempt := range []int{31, 100, 1 << 20} {
		if delay := s.Calculate(attempt, time.Second, max, 2.0); delay < 0 || delay > max {
			t.Fatalf("attempt %d: delay %v out of [0, %v]", attempt, delay, max)
		}
	}
}

func TestDecorrelatedJitterBounds(t *testing.T) {
	s := DecorrelatedJitterStrategy{}
	initial := 50 * time.Millisecond
	max := 5 * time.Second

	if got := s.Calculate(0, initial, max, 3.0); got != initial {
		t.Fatalf("attempt 0 delay = %v, want initial %v", got, initial)
	}

	for attempt := 1; attempt < 8; attempt++ {
		for i := 0; i < 200; i++ {
			delay := s.Calculate(attempt, initial, max, 3.0)
			if delay < initial || delay > max {
				t.Fatalf("attempt %d: delay %v out of [%v, %v]", attempt, delay, initial, max)
			}
		}
	}
}

func TestPow(t *testing.T) {
	cases := []struct {
		base     float64
		exponent int
		want     float64
	}{
		{2, 0, 1},
		{2, 3, 8},
		{1.5, 2, 2.25},
		{3, 1, 3},
	}
	for _, tc := range cases {
		if got := Pow(tc.base, tc.exponent); got != tc.want {
			t.Errorf("Pow(%v, %d) = %v, want %v", tc.base, tc.exponent, got, tc.want)
		}
	}
}

func TestCalculatorDelay(t *testing.T) {
	c := NewCalculator(ExponentialJitterStrategy{}, 10*time.Millisecond, time.Second, 2.0)

	delay := c.Delay(2)
	if delay < 40*time.Millisecond || delay >= 50*time.Millisecond {
		t.Fatalf("delay = %v, want [40ms, 50ms)", delay)
	}
	if c.Strategy() == nil {
		t.Fatal("strategy accessor returned nil")
	}
}
