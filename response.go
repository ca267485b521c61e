package tangguh

import (
	"net/http"
	"time"
)

// Response is the pipeline's view of a completed request. The body is fully
// buffered; treat the struct as read-only once returned.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// FromCache is true when the response was served by the cache
	// interceptor without a transport call.
	FromCache bool
	// Elapsed is the wall-clock duration of the transport execution, or
	// zero for cache hits.
	Elapsed time.Duration
}

// clone returns a shallow copy. The body slice is shared and read-only;
// de-duplicated callers each receive their own Response header map so a
// mutating caller cannot corrupt its siblings.
func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		Body:       r.Body,
		FromCache:  r.FromCache,
		Elapsed:    r.Elapsed,
	}
}
