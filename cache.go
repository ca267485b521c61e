package tangguh

import (
	"context"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"time"
)

// CacheEntry is a cached response keyed by request fingerprint.
type CacheEntry struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// Cache stores responses by fingerprint. The cache is advisory: the pipeline
// functions correctly with caching disabled. Implementations must be safe
// for concurrent use. Entries past ExpiresAt are treated as absent.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

// CacheCondition decides whether a request participates in caching.
type CacheCondition func(req *Request) bool

// CacheKeyFunc derives the cache key for a request.
type CacheKeyFunc func(req *Request) string

// DefaultCacheKeyFunc keys the cache by request fingerprint.
func DefaultCacheKeyFunc(req *Request) string {
	return req.Fingerprint()
}

// DefaultCacheCondition caches idempotent reads (GET, HEAD) that do not
// carry an explicit no-store directive.
func DefaultCacheCondition(req *Request) bool {
	switch req.Method() {
	case http.MethodGet, http.MethodHead:
	default:
		return false
	}
	return !strings.Contains(strings.ToLower(req.header.Get("Cache-Control")), "no-store")
}

type contextKey string

const cacheControlKey contextKey = "tangguh_cache_control"

// CacheControl holds per-request cache overrides carried on the context.
type CacheControl struct {
	Enabled bool
	TTL     time.Duration
}

// WithContextCacheEnabled forces caching for requests sent with this context.
func WithContextCacheEnabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: true})
}

// WithContextCacheDisabled disables caching for requests sent with this
// context regardless of the client's cache condition.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: false})
}

// WithContextCacheTTL enables caching with a custom TTL for requests sent
// with this context.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: true, TTL: ttl})
}

const numCacheShards = 16

// InMemoryCache is a sharded map cache with lazy expiry: stale entries are
// evicted on the next lookup, no background sweep runs.
type InMemoryCache struct {
	shards [numCacheShards]*cacheShard
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{}
	for i := range c.shards {
		c.shards[i] = &cacheShard{store: make(map[string]*CacheEntry)}
	}
	return c
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%numCacheShards]
}

// Get returns a fresh entry or reports absence, lazily evicting expired
// entries.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)

	shard.mu.RLock()
	entry, exists := shard.store[key]
	shard.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		shard.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have
		// replaced the entry with a fresh one.
		if cur, ok := shard.store[key]; ok && time.Now().After(cur.ExpiresAt) {
			delete(shard.store, key)
		}
		shard.mu.Unlock()
		return nil, false
	}

	return entry, true
}

// Set stores an entry with the given TTL.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry.StoredAt = time.Now()
	entry.ExpiresAt = entry.StoredAt.Add(ttl)
	shard.store[key] = entry
}

// Delete removes an entry.
func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

// Clear removes all entries.
func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len returns the number of stored entries, including not-yet-evicted
// expired ones.
func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// cacheInterceptor serves cacheable requests from the cache (short-circuit
// on hit) and populates it from successful responses on the unwind path.
// The client registers it first, so its OnResponse hook is the last to run
// and stores the response as other interceptors left it.
type cacheInterceptor struct {
	client *Client
}

func (ci *cacheInterceptor) cacheable(ctx context.Context, req *Request) bool {
	if cc, ok := ctx.Value(cacheControlKey).(*CacheControl); ok {
		return cc.Enabled
	}
	return ci.client.cacheCondition(req)
}

func (ci *cacheInterceptor) ttlFor(ctx context.Context) time.Duration {
	if cc, ok := ctx.Value(cacheControlKey).(*CacheControl); ok && cc.TTL > 0 {
		return cc.TTL
	}
	return ci.client.cacheTTL
}

func (ci *cacheInterceptor) OnRequest(ctx context.Context, req *Request) (*Request, *Response, error) {
	if !ci.cacheable(ctx, req) {
		return req, nil, nil
	}

	key := ci.client.cacheKeyFunc(req)
	if entry, found := ci.client.cache.Get(key); found {
		ci.client.observeCacheHit(req)
		return req, responseFromEntry(entry), nil
	}
	ci.client.observeCacheMiss(req)
	return req, nil, nil
}

func (ci *cacheInterceptor) OnResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if resp == nil || resp.FromCache || resp.StatusCode >= 400 {
		return resp, nil
	}
	if !ci.cacheable(ctx, req) {
		return resp, nil
	}

	key := ci.client.cacheKeyFunc(req)
	ci.client.cache.Set(key, entryFromResponse(resp), ci.ttlFor(ctx))
	ci.client.observeCacheStore(req)
	return resp, nil
}

func (ci *cacheInterceptor) OnError(ctx context.Context, req *Request, err error) (*Response, error) {
	return nil, err
}

func responseFromEntry(entry *CacheEntry) *Response {
	return &Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Header.Clone(),
		Body:       entry.Body,
		FromCache:  true,
	}
}

func entryFromResponse(resp *Response) *CacheEntry {
	return &CacheEntry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       resp.Body,
	}
}
