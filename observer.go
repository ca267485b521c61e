package tangguh

import "time"

// Observer carries optional callbacks fired on pipeline events. All fields
// may be nil; callbacks are advisory and never required for correctness.
// They run synchronously on the request goroutine, so keep them cheap.
type Observer struct {
	// OnBreakerStateChange fires on every breaker transition. The
	// Closed->Open transition fires exactly once per opening.
	OnBreakerStateChange func(target string, from, to BreakerState)
	// OnRetry fires before each retry delay.
	OnRetry func(req *Request, attempt int, delay time.Duration, err error)
	// OnCacheHit fires when a request is served from cache.
	OnCacheHit func(req *Request)
	// OnCacheMiss fires when a cacheable request misses.
	OnCacheMiss func(req *Request)
	// OnDedupHit fires when a request shares another's in-flight result.
	OnDedupHit func(req *Request)
	// OnQueueReject fires when queue acquisition fails.
	OnQueueReject func(req *Request, err error)
}

func (o *Observer) breakerStateChange(target string, from, to BreakerState) {
	if o != nil && o.OnBreakerStateChange != nil {
		o.OnBreakerStateChange(target, from, to)
	}
}

func (o *Observer) retry(req *Request, attempt int, delay time.Duration, err error) {
	if o != nil && o.OnRetry != nil {
		o.OnRetry(req, attempt, delay, err)
	}
}

func (o *Observer) cacheHit(req *Request) {
	if o != nil && o.OnCacheHit != nil {
		o.OnCacheHit(req)
	}
}

func (o *Observer) cacheMiss(req *Request) {
	if o != nil && o.OnCacheMiss != nil {
		o.OnCacheMiss(req)
	}
}

func (o *Observer) dedupHit(req *Request) {
	if o != nil && o.OnDedupHit != nil {
		o.OnDedupHit(req)
	}
}

func (o *Observer) queueReject(req *Request, err error) {
	if o != nil && o.OnQueueReject != nil {
		o.OnQueueReject(req, err)
	}
}
