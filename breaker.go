package tangguh

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int32

const (
	// StateClosed admits all requests (initial state).
	StateClosed BreakerState = iota
	// StateOpen rejects all requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of probe requests.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker tuning. Zero values fall back to the
// defaults documented on each field.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// state that opens the circuit. Default 5.
	FailureThreshold int
	// Cooldown is how long an opened circuit rejects requests before
	// admitting half-open probes. Default 30s.
	Cooldown time.Duration
	// CooldownMultiplier scales the cooldown on consecutive re-openings
	// (a failed probe re-opens with a longer cooldown). Default 1 (no
	// growth); values below 1 are treated as 1.
	CooldownMultiplier float64
	// MaxCooldown caps the grown cooldown. Default 5m.
	MaxCooldown time.Duration
	// HalfOpenProbes is the number of concurrent trial requests admitted
	// in HalfOpen state; excess requests are rejected, not queued.
	// Default 1.
	HalfOpenProbes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.CooldownMultiplier < 1 {
		c.CooldownMultiplier = 1
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 5 * time.Minute
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
	return c
}

// StateChangeFunc observes breaker transitions. The Closed->Open transition
// fires exactly once per opening.
type StateChangeFunc func(target string, from, to BreakerState)

// Breaker is the failure-isolation state machine for a single target. All
// transitions happen under one mutex so concurrent failures cannot
// double-count against the threshold or double-fire the opened event.
type Breaker struct {
	mu            sync.Mutex
	config        BreakerConfig
	target        string
	state         BreakerState
	failures      int
	openUntil     time.Time
	openings      int
	probes        int
	onStateChange StateChangeFunc
	now           func() time.Time
}

// NewBreaker creates a breaker for one target key.
func NewBreaker(target string, config BreakerConfig, onStateChange StateChangeFunc) *Breaker {
	return &Breaker{
		config:        config.withDefaults(),
		target:        target,
		state:         StateClosed,
		onStateChange: onStateChange,
		now:           time.Now,
	}
}

// Allow reports whether a request may proceed, reserving a half-open probe
// slot when applicable. Every admitted request must be settled with exactly
// one of RecordSuccess, RecordFailure or Release.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true
	case StateOpen:
		if b.now().Before(b.openUntil) {
			b.mu.Unlock()
			return false
		}
		fire := b.transition(StateHalfOpen)
		b.probes = 1
		b.mu.Unlock()
		fire()
		return true
	case StateHalfOpen:
		if b.probes >= b.config.HalfOpenProbes {
			b.mu.Unlock()
			return false
		}
		b.probes++
		b.mu.Unlock()
		return true
	default:
		b.mu.Unlock()
		return false
	}
}

// RecordSuccess settles an admitted request as a success. In Closed state it
// resets the consecutive-failure counter; a successful half-open probe
// closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	fire := noTransition

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		fire = b.transition(StateClosed)
		b.failures = 0
		b.openings = 0
		b.probes = 0
	}
	b.mu.Unlock()
	fire()
}

// RecordFailure settles an admitted request as a failure. Reaching the
// threshold in Closed state opens the circuit; a failed half-open probe
// re-opens it with a possibly longer cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	fire := noTransition

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			fire = b.open()
		}
	case StateHalfOpen:
		fire = b.open()
	}
	b.mu.Unlock()
	fire()
}

// Release returns an admitted slot without recording an outcome. Cancelled
// requests that never reached a terminal transport result use this so a
// half-open probe slot is not leaked.
func (b *Breaker) Release() {
	b.mu.Lock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
	b.mu.Unlock()
}

// Reset forces the breaker back to Closed with all counters cleared
// (admin operation).
func (b *Breaker) Reset() {
	b.mu.Lock()
	fire := noTransition
	if b.state != StateClosed {
		fire = b.transition(StateClosed)
	}
	b.failures = 0
	b.openings = 0
	b.probes = 0
	b.openUntil = time.Time{}
	b.mu.Unlock()
	fire()
}

// State returns the current state. An Open breaker whose cooldown has
// elapsed still reports Open until the next Allow admits a probe.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// open transitions to Open and schedules the cooldown, growing it on
// consecutive openings. Caller holds b.mu.
func (b *Breaker) open() func() {
	cooldown := b.config.Cooldown
	for i := 0; i < b.openings; i++ {
		cooldown = time.Duration(float64(cooldown) * b.config.CooldownMultiplier)
		if cooldown >= b.config.MaxCooldown {
			cooldown = b.config.MaxCooldown
			break
		}
	}
	b.openings++
	b.openUntil = b.now().Add(cooldown)
	b.probes = 0
	return b.transition(StateOpen)
}

// transition changes state and returns the event thunk to run after the
// mutex is released. Caller holds b.mu.
func (b *Breaker) transition(to BreakerState) func() {
	from := b.state
	b.state = to
	if b.onStateChange == nil || from == to {
		return noTransition
	}
	cb, target := b.onStateChange, b.target
	return func() { cb(target, from, to) }
}

func noTransition() {}

// BreakerKeyFunc derives the breaker key for a request. All requests with
// the same key share one breaker instance.
type BreakerKeyFunc func(req *Request) string

// DefaultBreakerKeyFunc keys breakers by target host.
func DefaultBreakerKeyFunc(req *Request) string {
	if u := req.URL(); u.Host != "" {
		return u.Host
	}
	return "unknown"
}

// BreakerRegistry lazily creates one Breaker per target key. Breakers
// persist for the registry's lifetime; Reset is the only way to clear one.
type BreakerRegistry struct {
	mu            sync.RWMutex
	breakers      map[string]*Breaker
	config        BreakerConfig
	onStateChange StateChangeFunc
}

// NewBreakerRegistry creates an empty registry sharing one config across
// targets.
func NewBreakerRegistry(config BreakerConfig, onStateChange StateChangeFunc) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:      make(map[string]*Breaker),
		config:        config.withDefaults(),
		onStateChange: onStateChange,
	}
}

// Get returns the breaker for a key, creating it on first use.
func (r *BreakerRegistry) Get(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b = NewBreaker(key, r.config, r.onStateChange)
	r.breakers[key] = b
	return b
}

// Reset resets the breaker for a key, if one exists.
func (r *BreakerRegistry) Reset(key string) {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		b.Reset()
	}
}

// ResetAll resets every breaker in the registry.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	for _, b := range breakers {
		b.Reset()
	}
}

// States returns a snapshot of target -> state, for admin introspection.
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]BreakerState, len(r.breakers))
	for key, b := range r.breakers {
		states[key] = b.State()
	}
	return states
}
