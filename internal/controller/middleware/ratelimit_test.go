package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"testplane/internal/logger"
)

func okHandler(called *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called++
		w.WriteHeader(http.StatusOK)
	})
}

func request(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/runs/1", nil)
	req.RemoteAddr = remote
	return req
}

func TestRateLimitMiddleware_Unlimited(t *testing.T) {
	calls := 0
	handler := NewRateLimiter(0, 0).Middleware()(okHandler(&calls))

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, request("10.0.0.1:1234"))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want 200", i, rr.Code)
		}
	}
	if calls != 50 {
		t.Errorf("handler called %d times, want 50", calls)
	}
}

func TestRateLimitMiddleware_RejectsOverBurst(t *testing.T) {
	calls := 0
	handler := NewRateLimiter(1, 2).Middleware()(okHandler(&calls))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, request("10.0.0.1:1234"))
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Error("429 without Retry-After header")
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("first two requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request got %d, want 429", codes[2])
	}
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	calls := 0
	handler := NewRateLimiter(1, 1).Middleware()(okHandler(&calls))

	for _, remote := range []string{"10.0.0.1:1000", "10.0.0.2:1000", "10.0.0.1:2000"} {
		handler.ServeHTTP(httptest.NewRecorder(), request(remote))
	}

	// The third request reuses the first client's exhausted bucket.
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
}

func TestRateLimiter_SweepDropsIdleBuckets(t *testing.T) {
	calls := 0
	rl := NewRateLimiter(1, 1, WithTTL(5*time.Millisecond))
	handler := rl.Middleware()(okHandler(&calls))

	for i := 0; i < 1000; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), request(fmt.Sprintf("10.%d.%d.1:1000", i/256, i%256)))
	}
	if got := rl.size(); got != 1000 {
		t.Fatalf("holding %d buckets, want 1000", got)
	}

	time.Sleep(30 * time.Millisecond)
	handler.ServeHTTP(httptest.NewRecorder(), request("192.168.0.1:1000"))

	if dropped := rl.Sweep(time.Now()); dropped != 1000 {
		t.Errorf("dropped %d buckets, want 1000", dropped)
	}
	if got := rl.size(); got != 1 {
		t.Errorf("holding %d buckets after sweep, want only the active client", got)
	}
}

func TestRateLimiter_ActiveClientKeepsExhaustedBucket(t *testing.T) {
	calls := 0
	rl := NewRateLimiter(0.001, 1, WithTTL(40*time.Millisecond))
	handler := rl.Middleware()(okHandler(&calls))

	for i := 0; i < 12; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), request("10.0.0.1:1234"))
		rl.Sweep(time.Now())
		time.Sleep(10 * time.Millisecond)
	}

	// Requests spanning three TTLs still share the first, exhausted bucket.
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestRateLimiter_RunSweepsUntilCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 1, WithTTL(5*time.Millisecond))
	rl.getOrCreate("10.0.0.1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for rl.size() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rl.size() != 0 {
		t.Error("idle bucket was never swept")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRateLimiter_ConcurrentFirstRequestsShareBucket(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.getOrCreate("10.0.0.1").Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 1 {
		t.Errorf("%d requests allowed, want exactly one burst token", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	t.Run("propagates caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if seen != "abc-123" {
			t.Errorf("context id = %q, want abc-123", seen)
		}
		if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("response header = %q, want abc-123", got)
		}
	})

	t.Run("generates id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		if seen == "" || seen == "abc-123" {
			t.Errorf("expected a fresh id, got %q", seen)
		}
		if rr.Header().Get(RequestIDHeader) != seen {
			t.Error("response header does not match context id")
		}
	})
}
