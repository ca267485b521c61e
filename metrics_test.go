package tangguh

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectorRecordsRequests(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordRequest("GET", "example.com/users", 200, 50*time.Millisecond)
	mc.RecordRequest("GET", "example.com/users", 200, 70*time.Millisecond)
	mc.RecordRequest("GET", "example.com/users", 503, 20*time.Millisecond)

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "example.com/users")); got != 2 {
		t.Fatalf("requests_total{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "503", "example.com/users")); got != 1 {
		t.Fatalf("requests_total{503} = %v, want 1", got)
	}
}

func TestMetricsCollectorInFlight(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordRequestStart("GET", "example.com/")
	mc.RecordRequestStart("GET", "example.com/")
	mc.RecordRequestEnd("GET", "example.com/")

	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "example.com/")); got != 1 {
		t.Fatalf("requests_in_flight = %v, want 1", got)
	}
}

func TestMetricsCollectorBreakerAndQueue(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordBreakerState("example.com", StateOpen)
	mc.RecordBreakerOpen("example.com")
	mc.RecordQueueDepth(3, 7, 2.5)
	mc.RecordQueueRejection(ErrorTypeTimeout)

	if got := testutil.ToFloat64(mc.breakerState.WithLabelValues("example.com")); got != float64(StateOpen) {
		t.Fatalf("breaker_state = %v, want %v", got, float64(StateOpen))
	}
	if got := testutil.ToFloat64(mc.queueWaiting); got != 3 {
		t.Fatalf("queue_waiting = %v, want 3", got)
	}
	if got := testutil.ToFloat64(mc.queueHeld); got != 7 {
		t.Fatalf("queue_held = %v, want 7", got)
	}
	if got := testutil.ToFloat64(mc.queueRejections.WithLabelValues(ErrorTypeTimeout)); got != 1 {
		t.Fatalf("queue_rejections = %v, want 1", got)
	}
}

func TestMetricsCollectorCacheAndDedup(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordCacheHit("GET", "example.com/")
	mc.RecordCacheMiss("GET", "example.com/")
	mc.RecordCacheSize("default", 12)
	mc.RecordDeduplicationHit("GET", "example.com/")
	mc.RecordRetryBudgetExceeded("example.com/")
	mc.RecordError(ErrorTypeNetwork, "GET", "example.com/")

	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("GET", "example.com/")); got != 1 {
		t.Fatalf("cache_hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.cacheSize.WithLabelValues("default")); got != 12 {
		t.Fatalf("cache_size = %v, want 12", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues(ErrorTypeNetwork, "GET", "example.com/")); got != 1 {
		t.Fatalf("errors_total = %v, want 1", got)
	}
}

func TestMetricsCollectorNilSafe(t *testing.T) {
	var mc *MetricsCollector

	// Every recording method must be a no-op on a nil collector.
	mc.RecordRequest("GET", "e", 200, time.Millisecond)
	mc.RecordRequestStart("GET", "e")
	mc.RecordRequestEnd("GET", "e")
	mc.RecordRetry("GET", "e", 1)
	mc.RecordBreakerState("e", StateClosed)
	mc.RecordBreakerOpen("e")
	mc.RecordQueueDepth(0, 0, 0)
	mc.RecordQueueRejection(ErrorTypeTimeout)
	mc.RecordCacheHit("GET", "e")
	mc.RecordCacheMiss("GET", "e")
	mc.RecordCacheSize("default", 0)
	mc.RecordDeduplicationHit("GET", "e")
	mc.RecordRetryBudgetExceeded("e")
	mc.RecordError(ErrorTypeNetwork, "GET", "e")
}

func TestClientWithMetricsEndToEnd(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	ct := &countingTransport{}
	client := New(WithTransport(ct), WithMetricsCollector(mc), WithCache(time.Minute))

	_, _ = client.Get(context.Background(), "http://example.com/users")
	_, _ = client.Get(context.Background(), "http://example.com/users")

	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("GET", "example.com/users")); got != 1 {
		t.Fatalf("cache_hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("GET", "example.com/users")); got != 1 {
		t.Fatalf("cache_misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "example.com/users")); got != 2 {
		t.Fatalf("requests_total = %v, want 2", got)
	}
}
