package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	llmstream "github.com/haowjy/meridian-stream-go"
)

func TestRequest_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":["ok"]}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	body, err := client.Request(context.Background(), "/generate", []byte(`{"prompt":"hi"}`), nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(body) != `{"candidates":["ok"]}` {
		t.Errorf("body = %s", body)
	}
}

func TestRequest_RetryBound(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":"rate_limit_exceeded","message":"slow down"}}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))

	// maxRetries = N performs exactly N+1 attempts, then surfaces the last
	// classified error.
	_, err := client.RequestWithRetry(context.Background(), "/generate", nil, nil, 3, time.Millisecond)
	if got := attempts.Load(); got != 4 {
		t.Errorf("attempts = %d, want 4", got)
	}
	if llmstream.KindOf(err) != llmstream.KindRateLimit {
		t.Errorf("KindOf = %v, want %v", llmstream.KindOf(err), llmstream.KindRateLimit)
	}
	if !errors.Is(err, llmstream.ErrRateLimited) {
		t.Error("err should wrap ErrRateLimited")
	}
}

func TestRequest_NoRetryOnNonRetryable(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"malformed"}}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.RequestWithRetry(context.Background(), "/generate", nil, nil, 5, time.Millisecond)

	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (bad request is not retryable)", got)
	}
	if llmstream.KindOf(err) != llmstream.KindBadRequest {
		t.Errorf("KindOf = %v, want %v", llmstream.KindOf(err), llmstream.KindBadRequest)
	}
}

func TestRequest_EventualSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "warming up")
			return
		}
		fmt.Fprint(w, "ready")
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	body, err := client.RequestWithRetry(context.Background(), "/generate", nil, nil, 3, time.Millisecond)
	if err != nil {
		t.Fatalf("RequestWithRetry: %v", err)
	}
	if string(body) != "ready" {
		t.Errorf("body = %s", body)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestRequest_ConnectFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(testConfig(url))
	_, err := client.Request(context.Background(), "/generate", nil, nil)
	if llmstream.KindOf(err) != llmstream.KindRequest {
		t.Errorf("KindOf = %v, want %v", llmstream.KindOf(err), llmstream.KindRequest)
	}
}

func TestRequest_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()

	// The first attempt fails retryably; the hour-long backoff is cut short
	// by the context.
	_, err := client.RequestWithRetry(ctx, "/generate", nil, nil, 3, time.Hour)
	if llmstream.KindOf(err) != llmstream.KindRequest {
		t.Errorf("KindOf = %v, want %v", llmstream.KindOf(err), llmstream.KindRequest)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want wrapped context.Canceled", err)
	}
}

func TestRequest_LinearBackoff(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))

	// Two retries at base 30ms sleep 30ms + 60ms: the whole call takes at
	// least the sum of the linear delays.
	start := time.Now()
	_, _ = client.RequestWithRetry(context.Background(), "/generate", nil, nil, 2, 30*time.Millisecond)
	elapsed := time.Since(start)

	if attempts.Load() != 3 {
		t.Fatalf("attempts = %d, want 3", attempts.Load())
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 90ms of linear backoff", elapsed)
	}
}
