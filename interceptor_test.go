package tangguh

import (
	"context"
	"errors"
	"testing"
)

func recordingInterceptor(name string, log *[]string) Interceptor {
	return InterceptorFuncs{
		Request: func(ctx context.Context, req *Request) (*Request, *Response, error) {
			*log = append(*log, "req:"+name)
			return req, nil, nil
		},
		Response: func(ctx context.Context, req *Request, resp *Response) (*Response, error) {
			*log = append(*log, "resp:"+name)
			return resp, nil
		},
		Error: func(ctx context.Context, req *Request, err error) (*Response, error) {
			*log = append(*log, "err:"+name)
			return nil, err
		},
	}
}

func okTransport() Transport {
	return TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	})
}

func TestInterceptorOrdering(t *testing.T) {
	var log []string
	chain := &interceptorChain{interceptors: []Interceptor{
		recordingInterceptor("a", &log),
		recordingInterceptor("b", &log),
	}}

	req, _ := NewRequest("GET", "http://example.com")
	if _, err := chain.execute(context.Background(), req, okTransport()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	want := []string{"req:a", "req:b", "resp:b", "resp:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestInterceptorShortCircuit(t *testing.T) {
	var log []string
	synthetic := &Response{StatusCode: 200, FromCache: true}
	shortCircuit := InterceptorFuncs{
		Request: func(ctx context.Context, req *Request) (*Request, *Response, error) {
			return req, synthetic, nil
		},
	}

	transportCalled := false
	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		transportCalled = true
		return &Response{StatusCode: 200}, nil
	})

	chain := &interceptorChain{interceptors: []Interceptor{
		recordingInterceptor("a", &log),
		shortCircuit,
		recordingInterceptor("c", &log),
	}}

	req, _ := NewRequest("GET", "http://example.com")
	resp, err := chain.execute(context.Background(), req, transport)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if transportCalled {
		t.Fatal("transport ran despite short-circuit")
	}
	if !resp.FromCache {
		t.Fatal("short-circuit response not returned")
	}

	// The interceptor after the short-circuit never saw the request; the one
	// before it still unwinds.
	want := []string{"req:a", "resp:a"}
	if len(log) != len(want) || log[0] != want[0] || log[1] != want[1] {
		t.Fatalf("log = %v, want %v", log, want)
	}
}

func TestInterceptorRequestErrorAborts(t *testing.T) {
	var log []string
	boom := errors.New("rejected")
	failing := InterceptorFuncs{
		Request: func(ctx context.Context, req *Request) (*Request, *Response, error) {
			return nil, nil, boom
		},
	}

	chain := &interceptorChain{interceptors: []Interceptor{
		recordingInterceptor("a", &log),
		failing,
	}}

	req, _ := NewRequest("GET", "http://example.com")
	_, err := chain.execute(context.Background(), req, okTransport())
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if len(log) != 2 || log[1] != "err:a" {
		t.Fatalf("log = %v, want error hook on applied interceptor", log)
	}
}

func TestInterceptorErrorRecovery(t *testing.T) {
	recovered := &Response{StatusCode: 200}
	recovering := InterceptorFuncs{
		Error: func(ctx context.Context, req *Request, err error) (*Response, error) {
			return recovered, nil
		},
	}

	failingTransport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, newClientError(ErrorTypeNetwork, "refused", nil)
	})

	var log []string
	chain := &interceptorChain{interceptors: []Interceptor{
		recordingInterceptor("outer", &log),
		recovering,
	}}

	req, _ := NewRequest("GET", "http://example.com")
	resp, err := chain.execute(context.Background(), req, failingTransport)
	if err != nil {
		t.Fatalf("recovery did not clear the error: %v", err)
	}
	if resp != recovered {
		t.Fatal("recovered response not propagated")
	}

	// The outer interceptor sees the recovered response, not the error.
	if len(log) != 2 || log[1] != "resp:outer" {
		t.Fatalf("log = %v, want outer response hook after recovery", log)
	}
}

func TestInterceptorRequestRewrite(t *testing.T) {
	rewriting := InterceptorFuncs{
		Request: func(ctx context.Context, req *Request) (*Request, *Response, error) {
			return req.WithHeaderValue("Authorization", "Bearer tok"), nil, nil
		},
	}

	var seen string
	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		seen = req.Header().Get("Authorization")
		return &Response{StatusCode: 200}, nil
	})

	chain := &interceptorChain{interceptors: []Interceptor{rewriting}}
	req, _ := NewRequest("GET", "http://example.com")
	if _, err := chain.execute(context.Background(), req, transport); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if seen != "Bearer tok" {
		t.Fatalf("transport saw Authorization = %q, want rewritten header", seen)
	}
	if req.Header().Get("Authorization") != "" {
		t.Fatal("original request mutated by interceptor")
	}
}
