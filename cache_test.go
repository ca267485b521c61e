package tangguh

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestInMemoryCacheBasic(t *testing.T) {
	c := NewInMemoryCache()
	entry := &CacheEntry{StatusCode: 200, Body: []byte("hello")}

	c.Set("k1", entry, time.Minute)
	got, found := c.Get("k1")
	if !found {
		t.Fatal("entry not found after Set")
	}
	if got.StatusCode != 200 || string(got.Body) != "hello" {
		t.Fatalf("got %+v, want stored entry", got)
	}

	if _, found := c.Get("absent"); found {
		t.Fatal("found entry for absent key")
	}
}

func TestInMemoryCacheExpiry(t *testing.T) {
	c := NewInMemoryCache()
	c.Set("k", &CacheEntry{StatusCode: 200}, 20*time.Millisecond)

	if _, found := c.Get("k"); !found {
		t.Fatal("entry missing before TTL")
	}

	time.Sleep(30 * time.Millisecond)
	if _, found := c.Get("k"); found {
		t.Fatal("entry served after TTL")
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("Len = %d after lazy expiry, want 0", got)
	}
}

func TestInMemoryCacheDeleteAndClear(t *testing.T) {
	c := NewInMemoryCache()
	c.Set("a", &CacheEntry{StatusCode: 200}, time.Minute)
	c.Set("b", &CacheEntry{StatusCode: 200}, time.Minute)

	c.Delete("a")
	if _, found := c.Get("a"); found {
		t.Fatal("deleted entry still present")
	}
	if _, found := c.Get("b"); !found {
		t.Fatal("unrelated entry removed by Delete")
	}

	c.Clear()
	if got := c.Len(); got != 0 {
		t.Fatalf("Len = %d after Clear, want 0", got)
	}
}

func TestInMemoryCacheLen(t *testing.T) {
	c := NewInMemoryCache()
	for i := 0; i < 50; i++ {
		c.Set(string(rune('a'+i)), &CacheEntry{StatusCode: 200}, time.Minute)
	}
	if got := c.Len(); got != 50 {
		t.Fatalf("Len = %d, want 50", got)
	}
}

func TestDefaultCacheCondition(t *testing.T) {
	get, _ := NewRequest("GET", "http://example.com")
	head, _ := NewRequest("HEAD", "http://example.com")
	post, _ := NewRequest("POST", "http://example.com")
	noStore, _ := NewRequest("GET", "http://example.com", WithHeader("Cache-Control", "no-store"))

	cases := []struct {
		name string
		req  *Request
		want bool
	}{
		{"GET", get, true},
		{"HEAD", head, true},
		{"POST", post, false},
		{"no-store", noStore, false},
	}
	for _, tc := range cases {
		if got := DefaultCacheCondition(tc.req); got != tc.want {
			t.Errorf("%s: cacheable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDefaultCacheKeyFunc(t *testing.T) {
	req, _ := NewRequest("GET", "http://example.com/users")
	if DefaultCacheKeyFunc(req) != req.Fingerprint() {
		t.Fatal("default cache key should be the request fingerprint")
	}
}

func TestContextCacheControlOverrides(t *testing.T) {
	client := New(WithCache(time.Minute))
	ci := &cacheInterceptor{client: client}

	get, _ := NewRequest("GET", "http://example.com")
	post, _ := NewRequest("POST", "http://example.com")

	if ci.cacheable(WithContextCacheDisabled(context.Background()), get) {
		t.Fatal("context disable did not override the cache condition")
	}
	if !ci.cacheable(WithContextCacheEnabled(context.Background()), post) {
		t.Fatal("context enable did not override the cache condition")
	}
	if !ci.cacheable(context.Background(), get) {
		t.Fatal("GET should be cacheable by default")
	}

	if got := ci.ttlFor(WithContextCacheTTL(context.Background(), 10*time.Second)); got != 10*time.Second {
		t.Fatalf("ttl = %v, want context override", got)
	}
	if got := ci.ttlFor(context.Background()); got != time.Minute {
		t.Fatalf("ttl = %v, want client default", got)
	}
}

func TestCacheEntryRoundTrip(t *testing.T) {
	resp := &Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"ok":true}`),
	}

	entry := entryFromResponse(resp)
	restored := responseFromEntry(entry)

	if restored.StatusCode != 200 || string(restored.Body) != `{"ok":true}` {
		t.Fatalf("restored = %+v, want original response", restored)
	}
	if restored.Header.Get("Content-Type") != "application/json" {
		t.Fatal("header lost in round trip")
	}
	if !restored.FromCache {
		t.Fatal("restored response must be marked FromCache")
	}
}
