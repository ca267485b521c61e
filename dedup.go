package tangguh

import "net/http"

// DefaultDeduplicationCondition admits only safe, idempotent methods into
// request coalescing. POST and PUT carry side effects per call and must
// each reach the server.
func DefaultDeduplicationCondition(req *Request) bool {
	switch req.Method() {
	case http.MethodGet, http.MethodHead:
		return true
	default:
		return false
	}
}
