package tangguh

import (
	"fmt"
	"net/http"
	"time"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithTransport replaces the transport executing requests. Useful for tests
// and for protocols other than plain HTTP.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient executes requests on the given *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.transport = NewHTTPTransport(hc)
	}
}

// WithTimeout sets the default per-request timeout spanning queue wait and
// transport execution. Zero disables the client-level deadline. Individual
// requests override this with WithRequestTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets the number of retry attempts after the initial try.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the base delay for the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff caps the retry delay.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the exponential growth factor between retries.
func WithBackoffMultiplier(m float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = m
	}
}

// WithRetryPolicy installs a custom retry policy, replacing the exponential
// default built from the backoff options.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = p
	}
}

// WithRetryBudget caps retries across all requests to maxRetries per window.
func WithRetryBudget(maxRetries int, window time.Duration) Option {
	return func(c *Client) {
		c.retryBudget = NewRetryBudget(maxRetries, window)
	}
}

// WithMaxConcurrency bounds the number of requests in flight at once.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) {
		c.maxConcurrency = n
	}
}

// WithRateLimit adds a token bucket in front of the transport: burst is the
// bucket capacity, rps the steady refill rate.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rateRPS = rps
		c.rateBurst = burst
	}
}

// WithAcquireTimeout bounds how long a request may wait for a queue slot
// independently of the overall request timeout.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.acquireTimeout = d
	}
}

// WithCircuitBreaker replaces the breaker configuration shared by all
// per-target breakers.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(c *Client) {
		c.breakerConfig = cfg
	}
}

// WithBreakerKeyFunc changes how requests map to breaker targets. The
// default keys by host.
func WithBreakerKeyFunc(fn BreakerKeyFunc) Option {
	return func(c *Client) {
		c.breakerKeyFunc = fn
	}
}

// WithCache enables the in-memory response cache with the given default TTL.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewInMemoryCache()
		c.cacheTTL = ttl
	}
}

// WithCustomCache installs a caller-provided cache backend (for example
// RedisCache) with the given default TTL.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithCacheCondition overrides which requests are cacheable. The default
// accepts GET and HEAD without Cache-Control: no-store.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithCacheKeyFunc overrides cache key derivation. The default uses the
// request fingerprint.
func WithCacheKeyFunc(fn CacheKeyFunc) Option {
	return func(c *Client) {
		c.cacheKeyFunc = fn
	}
}

// WithInterceptors appends interceptors to the chain in registration order.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, interceptors...)
	}
}

// WithDeduplication coalesces concurrent identical requests onto one
// execution. Identity is the request fingerprint.
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedupEnabled = true
	}
}

// WithDeduplicationCondition restricts which requests participate in
// de-duplication. The default accepts GET and HEAD.
func WithDeduplicationCondition(fn func(req *Request) bool) Option {
	return func(c *Client) {
		c.dedupEnabled = true
		c.dedupCondition = fn
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector installs a pre-built collector, typically one bound
// to a private registry.
func WithMetricsCollector(mc *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = mc
	}
}

// WithObserver installs event callbacks.
func WithObserver(o *Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithSimpleLogger installs the console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithDebug enables debug logging for all categories with a SimpleLogger
// unless another logger was installed.
func WithDebug() Option {
	return func(c *Client) {
		c.debug.Enabled = true
		if c.logger == nil {
			c.logger = NewSimpleLogger()
		}
	}
}

// WithDebugConfig installs a custom debug configuration.
func WithDebugConfig(cfg *DebugConfig) Option {
	return func(c *Client) {
		if cfg == nil {
			return
		}
		if cfg.RequestIDGen == nil {
			cfg.RequestIDGen = DefaultDebugConfig().RequestIDGen
		}
		c.debug = cfg
		if cfg.Enabled && c.logger == nil {
			c.logger = NewSimpleLogger()
		}
	}
}

// ValidateConfiguration checks the assembled configuration for values that
// would misbehave at runtime and returns the first problem found.
func (c *Client) ValidateConfiguration() error {
	if c.timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", c.timeout)
	}
	if c.maxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.maxRetries)
	}
	if c.initialBackoff <= 0 {
		return fmt.Errorf("initial backoff must be positive, got %v", c.initialBackoff)
	}
	if c.maxBackoff < c.initialBackoff {
		return fmt.Errorf("max backoff %v must be >= initial backoff %v", c.maxBackoff, c.initialBackoff)
	}
	if c.backoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1, got %f", c.backoffMultiplier)
	}
	if c.maxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.maxConcurrency)
	}
	if c.rateRPS < 0 {
		return fmt.Errorf("rate limit must not be negative, got %f", c.rateRPS)
	}
	if c.rateRPS > 0 && c.rateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limiting, got %d", c.rateBurst)
	}
	if c.acquireTimeout < 0 {
		return fmt.Errorf("acquire timeout must not be negative, got %v", c.acquireTimeout)
	}
	if c.cache != nil && c.cacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %v", c.cacheTTL)
	}
	if c.breakerKeyFunc == nil {
		return fmt.Errorf("breaker key function must not be nil")
	}
	if c.cacheKeyFunc == nil {
		return fmt.Errorf("cache key function must not be nil")
	}
	if c.cacheCondition == nil {
		return fmt.Errorf("cache condition must not be nil")
	}
	if c.dedupEnabled && c.dedupCondition == nil {
		return fmt.Errorf("deduplication condition must not be nil")
	}
	return nil
}
