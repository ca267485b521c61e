package tangguh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// Client executes requests through the resilience pipeline: request queue,
// per-target circuit breakers, interceptor chain, response cache, retries
// with backoff, optional de-duplication, metrics and debug logging. It is
// safe for concurrent use; construct one and share it.
type Client struct {
	transport Transport
	timeout   time.Duration

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	retryPolicy       RetryPolicy
	retryBudget       *RetryBudget

	breakerConfig  BreakerConfig
	breakerKeyFunc BreakerKeyFunc
	breakers       *BreakerRegistry

	maxConcurrency int
	rateRPS        float64
	rateBurst      int
	acquireTimeout time.Duration
	queue          *Queue

	cache          Cache
	cacheTTL       time.Duration
	cacheKeyFunc   CacheKeyFunc
	cacheCondition CacheCondition

	interceptors []Interceptor
	chain        *interceptorChain

	dedupEnabled   bool
	dedupCondition func(req *Request) bool
	flights        singleflight.Group

	metrics  *MetricsCollector
	observer *Observer
	debug    *DebugConfig
	logger   Logger

	closed          atomic.Bool
	validationError error
}

// New constructs a Client from functional options. Configuration problems
// are collected rather than panicking; call ValidationError to inspect them
// (Send also refuses to run with an invalid configuration).
func New(options ...Option) *Client {
	c := &Client{
		timeout:           30 * time.Second,
		maxRetries:        3,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		breakerConfig:     BreakerConfig{},
		breakerKeyFunc:    DefaultBreakerKeyFunc,
		maxConcurrency:    100,
		cacheTTL:          5 * time.Minute,
		cacheKeyFunc:      DefaultCacheKeyFunc,
		cacheCondition:    DefaultCacheCondition,
		dedupCondition:    DefaultDeduplicationCondition,
		debug:             DefaultDebugConfig(),
	}

	for _, option := range options {
		option(c)
	}

	if c.transport == nil {
		c.transport = NewHTTPTransport(nil)
	}
	if c.retryPolicy == nil {
		c.retryPolicy = NewExponentialRetryPolicy(
			c.maxRetries, c.initialBackoff, c.maxBackoff, c.backoffMultiplier)
	}

	var queueOpts []QueueOption
	if c.rateRPS > 0 {
		queueOpts = append(queueOpts, WithQueueRateLimit(c.rateRPS, c.rateBurst))
	}
	if c.acquireTimeout > 0 {
		queueOpts = append(queueOpts, WithQueueAcquireTimeout(c.acquireTimeout))
	}
	c.queue = NewQueue(c.maxConcurrency, queueOpts...)

	c.breakers = NewBreakerRegistry(c.breakerConfig, c.onBreakerStateChange)

	chain := make([]Interceptor, 0, len(c.interceptors)+1)
	if c.cache != nil {
		// Registered first so its OnResponse hook runs last and stores
		// the response as the other interceptors left it.
		chain = append(chain, &cacheInterceptor{client: c})
	}
	chain = append(chain, c.interceptors...)
	c.chain = &interceptorChain{interceptors: chain}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

// Send executes the request through the pipeline and returns the final
// response or a typed *ClientError. The effective timeout (per-request
// override or client default) spans queue wait plus transport execution
// and aborts an in-flight transport call when it fires.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if c.closed.Load() {
		return nil, newClientError(ErrorTypeValidation, "client is closed", ErrClientClosed)
	}
	if c.validationError != nil {
		return nil, c.validationError
	}
	if verr := validateRequest(req); verr != nil {
		return nil, verr
	}

	if timeout := c.effectiveTimeout(req); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.dedupEnabled && c.dedupCondition(req) {
		return c.sendDeduplicated(ctx, req)
	}
	return c.send(ctx, req)
}

// sendDeduplicated coalesces concurrent identical requests onto a single
// pipeline execution. The shared result's body is read-only; each caller
// receives its own header map. Late arrivals inherit the owner's context:
// if the owning caller cancels, every waiter sees the cancellation.
func (c *Client) sendDeduplicated(ctx context.Context, req *Request) (*Response, error) {
	v, err, shared := c.flights.Do(req.Fingerprint(), func() (interface{}, error) {
		return c.send(ctx, req)
	})

	resp, _ := v.(*Response)
	if shared {
		c.observer.dedupHit(req)
		c.metrics.RecordDeduplicationHit(req.Method(), req.endpoint())
		resp = resp.clone()
	}
	return resp, err
}

// send runs the retry loop around single attempts.
func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	method := req.Method()
	endpoint := req.endpoint()

	var requestID string
	if c.debugOn(c.debug.LogRequests) {
		requestID = c.debug.RequestIDGen()
		c.logger.Debug("starting request",
			"requestID", requestID, "method", method, "url", req.URL().String(),
			"fingerprint", req.Fingerprint())
	}

	c.metrics.RecordRequestStart(method, endpoint)
	defer c.metrics.RecordRequestEnd(method, endpoint)

	breakerKey := c.breakerKeyFunc(req)
	breaker := c.breakers.Get(breakerKey)

	var err error
	for attempt := 0; ; attempt++ {
		var resp *Response
		resp, err = c.attempt(ctx, req, breaker, breakerKey, attempt, start)
		if err == nil {
			c.metrics.RecordRequest(method, endpoint, resp.StatusCode, time.Since(start))
			c.recordCacheSize()
			return resp, nil
		}

		if !c.retryPolicy.ShouldRetry(err, attempt) {
			break
		}

		if c.retryBudget != nil && !c.retryBudget.Allow() {
			c.metrics.RecordRetryBudgetExceeded(endpoint)
			if c.debugOn(c.debug.LogRetries) {
				c.logger.Warn("retry budget exceeded", "requestID", requestID, "endpoint", endpoint)
			}
			err = c.enrich(newClientError(ErrorTypeRetryBudgetExceeded,
				"retry budget exceeded", err), req, attempt, start)
			break
		}

		delay := c.retryPolicy.DelayFor(attempt)
		var ce *ClientError
		if errors.As(err, &ce) && ce.RetryAfter > delay {
			delay = ce.RetryAfter
		}

		c.observer.retry(req, attempt, delay, err)
		c.metrics.RecordRetry(method, endpoint, attempt+1)
		if c.debugOn(c.debug.LogRetries) {
			c.logger.Info("scheduling retry",
				"requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", endpoint)
		}

		// The slot was already released by attempt; nothing is held
		// across the delay.
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			err = c.enrich(classifyContextError(ctx), req, attempt, start)
			c.recordFailure(method, endpoint, err, start)
			return nil, err
		}
	}

	c.recordFailure(method, endpoint, err, start)
	return nil, err
}

// attempt performs one pass through queue, breaker gate, interceptor chain
// and transport. The queue slot is released on every exit path.
func (c *Client) attempt(ctx context.Context, req *Request, breaker *Breaker, breakerKey string, attempt int, start time.Time) (*Response, error) {
	slot, err := c.queue.Acquire(ctx)
	if err != nil {
		// Queue failures never touch the breaker.
		c.observer.queueReject(req, err)
		c.metrics.RecordQueueRejection(errorTypeOf(err))
		if c.debugOn(c.debug.LogQueue) {
			c.logger.Warn("queue acquisition failed", "endpoint", req.endpoint(), "error", err.Error())
		}
		return nil, c.enrich(err, req, attempt, start)
	}
	defer slot.Release()
	c.metrics.RecordQueueDepth(c.queue.Waiting(), c.queue.Held(), c.queue.RateTokens())

	if !breaker.Allow() {
		if c.debugOn(c.debug.LogCircuit) {
			c.logger.Warn("circuit breaker rejected request",
				"target", breakerKey, "state", breaker.State().String())
		}
		return nil, c.enrich(newClientError(ErrorTypeCircuitOpen,
			fmt.Sprintf("circuit breaker open for %s", breakerKey), ErrCircuitOpen), req, attempt, start)
	}

	resp, err := c.chain.execute(ctx, req, c.transport)

	if err == nil && resp != nil && resp.StatusCode >= 500 {
		err = c.serverError(resp)
		resp = nil
	}

	switch {
	case err == nil && resp != nil && resp.FromCache:
		// Cache hits never reached the transport; no outcome to record.
		breaker.Release()
	case err == nil:
		breaker.RecordSuccess()
	case breakerCountable(err):
		breaker.RecordFailure()
		if c.debugOn(c.debug.LogCircuit) {
			c.logger.Warn("circuit breaker failure recorded",
				"target", breakerKey, "error", err.Error())
		}
	default:
		// Cancelled requests and hook failures carry no transport
		// outcome; return the probe slot without accounting.
		breaker.Release()
	}
	c.metrics.RecordBreakerState(breakerKey, breaker.State())

	if err != nil {
		return nil, c.enrich(err, req, attempt, start)
	}
	return resp, nil
}

// serverError converts a >= 500 response into a Server ClientError,
// honoring a Retry-After header if present.
func (c *Client) serverError(resp *Response) *ClientError {
	err := newClientError(ErrorTypeServer,
		fmt.Sprintf("server returned status %d", resp.StatusCode), nil)
	err.StatusCode = resp.StatusCode
	err.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	return err
}

// breakerCountable reports whether an error is a terminal transport outcome
// the breaker should count. Cancellation and validation are excluded, as
// are unclassified interceptor failures.
func breakerCountable(err error) bool {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer:
		return true
	default:
		return false
	}
}

// errorTypeOf extracts the ClientError type tag, or "Unknown".
func errorTypeOf(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return "Unknown"
}

// enrich stamps request metadata onto a ClientError. Foreign errors pass
// through untouched.
func (c *Client) enrich(err error, req *Request, attempt int, start time.Time) error {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return err
	}
	ce.Fingerprint = req.Fingerprint()
	ce.Method = req.Method()
	ce.URL = req.URL().String()
	ce.Attempt = attempt
	ce.MaxRetries = c.maxRetries
	ce.Duration = time.Since(start)
	return err
}

func (c *Client) recordFailure(method, endpoint string, err error, start time.Time) {
	statusCode := 0
	var ce *ClientError
	if errors.As(err, &ce) {
		statusCode = ce.StatusCode
	}
	c.metrics.RecordRequest(method, endpoint, statusCode, time.Since(start))
	c.metrics.RecordError(errorTypeOf(err), method, endpoint)
}

func (c *Client) effectiveTimeout(req *Request) time.Duration {
	if req.Timeout() > 0 {
		return req.Timeout()
	}
	return c.timeout
}

func (c *Client) onBreakerStateChange(target string, from, to BreakerState) {
	c.metrics.RecordBreakerState(target, to)
	if to == StateOpen {
		c.metrics.RecordBreakerOpen(target)
	}
	if c.debugOn(c.debug.LogCircuit) {
		c.logger.Info("circuit breaker state change",
			"target", target, "from", from.String(), "to", to.String())
	}
	c.observer.breakerStateChange(target, from, to)
}

func (c *Client) observeCacheHit(req *Request) {
	c.metrics.RecordCacheHit(req.Method(), req.endpoint())
	c.observer.cacheHit(req)
	if c.debugOn(c.debug.LogCache) {
		c.logger.Debug("cache hit", "fingerprint", req.Fingerprint())
	}
}

func (c *Client) observeCacheMiss(req *Request) {
	c.metrics.RecordCacheMiss(req.Method(), req.endpoint())
	c.observer.cacheMiss(req)
	if c.debugOn(c.debug.LogCache) {
		c.logger.Debug("cache miss", "fingerprint", req.Fingerprint())
	}
}

func (c *Client) observeCacheStore(req *Request) {
	if c.debugOn(c.debug.LogCache) {
		c.logger.Debug("response cached", "fingerprint", req.Fingerprint())
	}
}

func (c *Client) recordCacheSize() {
	if mem, ok := c.cache.(*InMemoryCache); ok {
		c.metrics.RecordCacheSize("default", mem.Len())
	}
}

func (c *Client) debugOn(flag bool) bool {
	return c.debug != nil && c.debug.Enabled && flag && c.logger != nil
}

// Get performs a GET through the pipeline.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.sendVerb(ctx, http.MethodGet, url, opts)
}

// Head performs a HEAD through the pipeline.
func (c *Client) Head(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.sendVerb(ctx, http.MethodHead, url, opts)
}

// Delete performs a DELETE through the pipeline.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.sendVerb(ctx, http.MethodDelete, url, opts)
}

// Post performs a POST with the given content type and body.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte, opts ...RequestOption) (*Response, error) {
	opts = append([]RequestOption{WithHeader("Content-Type", contentType), WithBody(body)}, opts...)
	return c.sendVerb(ctx, http.MethodPost, url, opts)
}

// Put performs a PUT with the given content type and body.
func (c *Client) Put(ctx context.Context, url, contentType string, body []byte, opts ...RequestOption) (*Response, error) {
	opts = append([]RequestOption{WithHeader("Content-Type", contentType), WithBody(body)}, opts...)
	return c.sendVerb(ctx, http.MethodPut, url, opts)
}

func (c *Client) sendVerb(ctx context.Context, method, url string, opts []RequestOption) (*Response, error) {
	req, err := NewRequest(method, url, opts...)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// InvalidateCached removes the cached response for a request, if any.
func (c *Client) InvalidateCached(req *Request) {
	if c.cache == nil || req == nil {
		return
	}
	c.cache.Delete(c.cacheKeyFunc(req))
}

// ResetBreaker resets the breaker for a target key (admin operation).
func (c *Client) ResetBreaker(target string) {
	c.breakers.Reset(target)
}

// BreakerStates returns a snapshot of breaker states per target.
func (c *Client) BreakerStates() map[string]BreakerState {
	return c.breakers.States()
}

// Close releases queue resources and rejects further sends with a terminal
// error. In-flight requests drain normally.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.queue.Close()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
