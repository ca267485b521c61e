package tangguh

import (
	"errors"
	"fmt"
	"time"
)

// Error type tags carried by ClientError. The pipeline classifies every
// terminal failure into exactly one of these.
const (
	// ErrorTypeNetwork marks transport-level I/O failures.
	ErrorTypeNetwork = "Network"
	// ErrorTypeTimeout marks deadline expiry at the queue-wait or transport stage.
	ErrorTypeTimeout = "Timeout"
	// ErrorTypeCancelled marks caller-initiated cancellation.
	ErrorTypeCancelled = "Cancelled"
	// ErrorTypeCircuitOpen marks rejection by an open circuit breaker, no
	// transport call was attempted.
	ErrorTypeCircuitOpen = "CircuitOpen"
	// ErrorTypeServer marks responses whose status code indicates a server
	// side failure (>= 500).
	ErrorTypeServer = "Server"
	// ErrorTypeDecode marks response bodies that could not be interpreted.
	ErrorTypeDecode = "Decode"
	// ErrorTypeValidation marks malformed requests or configuration; these
	// never enter the pipeline.
	ErrorTypeValidation = "Validation"
	// ErrorTypeRateLimit marks rejection at the request queue's rate gate.
	ErrorTypeRateLimit = "RateLimit"
	// ErrorTypeRetryBudgetExceeded marks retries suppressed by the budget.
	ErrorTypeRetryBudgetExceeded = "RetryBudgetExceeded"
)

// Sentinel errors for common failure scenarios. ClientError values match
// these through errors.Is.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a request.
	ErrCircuitOpen = errors.New("tangguh: circuit open")

	// ErrRateLimited is returned when a request is denied due to rate limiting.
	ErrRateLimited = errors.New("tangguh: rate limited")

	// ErrRetryBudgetExceeded is returned when the retry budget is exhausted.
	ErrRetryBudgetExceeded = errors.New("tangguh: retry budget exceeded")

	// ErrClientClosed is returned by Send after Close has been called.
	ErrClientClosed = errors.New("tangguh: client closed")
)

// ClientError is the typed error produced by the pipeline. Type carries the
// classification, Fingerprint identifies the originating request, Cause the
// underlying error if any.
type ClientError struct {
	Type        string
	Message     string
	Cause       error
	Fingerprint string
	Method      string
	URL         string
	StatusCode  int
	Attempt     int
	MaxRetries  int
	RetryAfter  time.Duration
	Timestamp   time.Time
	Duration    time.Duration
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry: network errors, timeouts and 5xx responses.
// Cancellation, decode and validation failures are never transient, and
// neither is a breaker rejection (retrying against an open breaker cannot
// succeed before the cooldown elapses).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout:
			return true
		case ErrorTypeServer:
			return clientErr.StatusCode >= 500 || clientErr.StatusCode == 0
		default:
			return false
		}
	}

	return false
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	if e.Fingerprint != "" {
		msg = fmt.Sprintf("[%s] %s", e.Fingerprint, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is. Sentinel errors map onto the
// corresponding Type tag so callers can write errors.Is(err, ErrCircuitOpen).
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrCircuitOpen:
		return e.Type == ErrorTypeCircuitOpen
	case ErrRateLimited:
		return e.Type == ErrorTypeRateLimit
	case ErrRetryBudgetExceeded:
		return e.Type == ErrorTypeRetryBudgetExceeded
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.Fingerprint != "" {
		info += fmt.Sprintf("Fingerprint: %s\n", e.Fingerprint)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// newClientError builds a bare classified error; the client enriches it with
// request metadata before surfacing.
func newClientError(errorType, message string, cause error) *ClientError {
	return &ClientError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}
