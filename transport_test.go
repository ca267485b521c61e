package tangguh

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransportExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if got := r.Header.Get("X-Trace"); got != "abc" {
			t.Errorf("X-Trace = %q, want abc", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("body = %q, want payload", body)
		}
		w.Header().Set("X-Server", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer server.Close()

	req, err := NewRequest("POST", server.URL,
		WithHeader("X-Trace", "abc"), WithBody([]byte("payload")))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	transport := NewHTTPTransport(nil)
	resp, err := transport.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != "created" {
		t.Fatalf("body = %q, want created", resp.Body)
	}
	if resp.Header.Get("X-Server") != "yes" {
		t.Fatal("response header missing")
	}
	if resp.FromCache {
		t.Fatal("transport response marked FromCache")
	}
	if resp.Elapsed <= 0 {
		t.Fatal("elapsed not recorded")
	}
}

func TestHTTPTransportTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	req, _ := NewRequest("GET", server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewHTTPTransport(nil).Execute(ctx, req)
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Type != ErrorTypeTimeout {
		t.Fatalf("error = %v, want Timeout ClientError", err)
	}
}

func TestHTTPTransportCancelled(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	req, _ := NewRequest("GET", server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := NewHTTPTransport(nil).Execute(ctx, req)
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Type != ErrorTypeCancelled {
		t.Fatalf("error = %v, want Cancelled ClientError", err)
	}
}

func TestHTTPTransportConnectionRefused(t *testing.T) {
	// A server that is immediately closed leaves a port nothing listens on.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	req, _ := NewRequest("GET", url)
	_, err := NewHTTPTransport(nil).Execute(context.Background(), req)
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Type != ErrorTypeNetwork {
		t.Fatalf("error = %v, want Network ClientError", err)
	}
}

func TestTransportFuncAdapter(t *testing.T) {
	called := false
	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		called = true
		return &Response{StatusCode: 204}, nil
	})

	req, _ := NewRequest("GET", "http://example.com")
	resp, err := transport.Execute(context.Background(), req)
	if err != nil || resp.StatusCode != 204 || !called {
		t.Fatalf("adapter misbehaved: resp=%v err=%v called=%v", resp, err, called)
	}
}
