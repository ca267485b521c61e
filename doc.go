// Package tangguh provides a resilient HTTP request pipeline built from
// composable reliability primitives:
//
//   - Retries with exponential backoff + bounded jitter (Retry-After aware)
//   - Request queue bounding concurrency and request rate (token bucket)
//   - Per-target circuit breakers (closed / open / half-open probing)
//   - Response caching with TTL and per-request overrides (memory or Redis)
//   - Ordered interceptor chain for cross-cutting concerns
//   - Optional request de-duplication of concurrent identical requests
//   - Prometheus metrics, observer callbacks and structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Transport-agnostic core: byte-level I/O lives behind the Transport
//     interface, the default adapter wraps net/http
//
// Typical usage:
//
//	client := tangguh.New(
//	    tangguh.WithMaxRetries(3),
//	    tangguh.WithMaxConcurrency(32),
//	    tangguh.WithRateLimit(50, 100),
//	    tangguh.WithCache(5*time.Minute),
//	    tangguh.WithCircuitBreaker(tangguh.BreakerConfig{}),
//	)
//	defer client.Close()
//
//	req, _ := tangguh.NewRequest("GET", "https://api.example.com/data")
//	resp, err := client.Send(ctx, req)
//
// Every terminal failure is a typed *ClientError; inspect it with errors.As
// or match sentinels such as ErrCircuitOpen with errors.Is. The library
// avoids opinionated logging: provide a Logger (e.g. via WithSimpleLogger)
// and enable debug flags selectively for insight without noise.
package tangguh
