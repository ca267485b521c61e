package tangguh

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// maxResponseBody bounds how much of a response the pipeline will buffer.
const maxResponseBody = 10 * 1024 * 1024

// Transport executes a single request attempt. Implementations perform the
// byte-level I/O; the pipeline never opens sockets itself. Execute must
// honor ctx cancellation by aborting the in-flight call, not merely by
// returning early.
type Transport interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Execute implements Transport.
func (f TransportFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport is the default Transport backed by net/http. It buffers
// response bodies and classifies transport failures into the ClientError
// taxonomy (Network, Timeout, Cancelled).
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps an *http.Client. A nil client gets a fresh one with
// no client-level timeout: deadlines are driven entirely by the request
// context so the pipeline's effective timeout stays authoritative.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client}
}

// Execute implements Transport.
func (t *HTTPTransport) Execute(ctx context.Context, req *Request) (*Response, error) {
	var bodyReader io.Reader
	if body := req.Body(); body != nil {
		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL().String(), bodyReader)
	if err != nil {
		return nil, newClientError(ErrorTypeValidation, "building http request", err)
	}
	for key, values := range req.Header() {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       body,
		Elapsed:    time.Since(start),
	}, nil
}

// classifyTransportError maps raw transport failures onto the error
// taxonomy. Context state takes precedence: a request whose deadline fired
// mid-flight is a Timeout even if the underlying error is a socket error.
func classifyTransportError(ctx context.Context, err error) *ClientError {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newClientError(ErrorTypeTimeout, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return newClientError(ErrorTypeCancelled, "request cancelled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newClientError(ErrorTypeTimeout, "network timeout", err)
	}

	return newClientError(ErrorTypeNetwork, "network request failed", err)
}

// classifyContextError maps a context's terminal state onto the taxonomy.
// Used at suspension points that fail without an underlying transport error
// (queue wait, retry delay).
func classifyContextError(ctx context.Context) *ClientError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newClientError(ErrorTypeTimeout, "deadline exceeded while waiting", ctx.Err())
	}
	return newClientError(ErrorTypeCancelled, "cancelled while waiting", ctx.Err())
}
