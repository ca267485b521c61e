package tangguh

import (
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is an immutable description of an HTTP request flowing through the
// pipeline. Build one with NewRequest; accessors return copies so a Request
// can be shared between goroutines and retried safely.
type Request struct {
	method      string
	url         *url.URL
	header      http.Header
	body        []byte
	timeout     time.Duration
	fingerprint string
}

// RequestOption configures a Request at construction time.
type RequestOption func(*Request)

// WithHeader sets a header on the request. Keys are canonicalized by
// http.Header, so lookups are case-insensitive and the last write wins.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.header.Set(key, value)
	}
}

// WithBody sets the request body. The slice is copied.
func WithBody(body []byte) RequestOption {
	return func(r *Request) {
		r.body = append([]byte(nil), body...)
	}
}

// WithRequestTimeout overrides the client-level timeout for this request.
// The timeout spans queue wait plus transport execution.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(r *Request) {
		r.timeout = d
	}
}

// NewRequest builds an immutable Request. The URL must be absolute with an
// http or https scheme; a malformed URL yields a Validation ClientError.
func NewRequest(method, rawURL string, opts ...RequestOption) (*Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, newClientError(ErrorTypeValidation, "malformed request URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, newClientError(ErrorTypeValidation,
			fmt.Sprintf("unsupported URL scheme %q", u.Scheme), nil)
	}
	if u.Host == "" {
		return nil, newClientError(ErrorTypeValidation, "request URL has no host", nil)
	}

	r := &Request{
		method: strings.ToUpper(method),
		url:    u,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.fingerprint = computeFingerprint(r.method, u.String(), r.body)
	return r, nil
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// URL returns a copy of the target URL.
func (r *Request) URL() *url.URL {
	u := *r.url
	return &u
}

// Header returns a clone of the request headers.
func (r *Request) Header() http.Header { return r.header.Clone() }

// Body returns a copy of the request body, or nil.
func (r *Request) Body() []byte {
	if r.body == nil {
		return nil
	}
	return append([]byte(nil), r.body...)
}

// Timeout returns the per-request timeout override (zero means the client
// default applies).
func (r *Request) Timeout() time.Duration { return r.timeout }

// Fingerprint returns the stable identity of this request derived from
// method, URL and body hash. It keys the cache, the de-duplication group
// and breaker accounting.
func (r *Request) Fingerprint() string { return r.fingerprint }

// WithHeaderValue returns a copy of the request with one header set. The
// fingerprint is unchanged: headers do not participate in request identity.
// Interceptors use this to decorate requests without aliasing.
func (r *Request) WithHeaderValue(key, value string) *Request {
	clone := r.clone()
	clone.header.Set(key, value)
	return clone
}

func (r *Request) clone() *Request {
	return &Request{
		method:      r.method,
		url:         r.URL(),
		header:      r.header.Clone(),
		body:        r.body,
		timeout:     r.timeout,
		fingerprint: r.fingerprint,
	}
}

// endpoint returns host+path for metric labels.
func (r *Request) endpoint() string {
	if r.url == nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(r.url.Host)
	if r.url.Path != "" && r.url.Path != "/" {
		builder.WriteString(r.url.Path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}

// validateRequest is the fail-fast gate at the top of Send; it runs before
// any queue or breaker involvement.
func validateRequest(r *Request) *ClientError {
	if r == nil {
		return newClientError(ErrorTypeValidation, "nil request", nil)
	}
	if r.url == nil || r.url.Host == "" {
		return newClientError(ErrorTypeValidation, "request URL has no host", nil)
	}
	if r.method == "" {
		return newClientError(ErrorTypeValidation, "request method is empty", nil)
	}
	return nil
}

// computeFingerprint hashes method + URL with FNV-64a and mixes in a SHA-256
// digest of the body when present.
func computeFingerprint(method, rawURL string, body []byte) string {
	h := fnv.New64a()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(rawURL))
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		h.Write(sum[:])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
