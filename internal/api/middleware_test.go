package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/redis"
)

func okHandler() (http.Handler, *int) {
	var calls int
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}), &calls
}

func TestRateLimitMiddlewarePassesThroughWithoutLimiter(t *testing.T) {
	next, calls := okHandler()
	mw := RateLimitMiddleware(nil, zap.NewNop(), IPKeyFunc)

	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusOK || *calls != 1 {
		t.Errorf("status = %d calls = %d, want pass-through", rec.Code, *calls)
	}
}

func TestRateLimitMiddlewareRejectsOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatal(err)
	}
	client, err := redis.New(context.Background(), redis.Config{Host: mr.Host(), Port: port}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })

	limiter := redis.NewRateLimiter(client, zap.NewNop(), redis.RateLimitConfig{
		Limit:  2,
		Window: time.Minute,
	})

	next, calls := okHandler()
	handler := RateLimitMiddleware(limiter, zap.NewNop(), IPKeyFunc)(next)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if *calls != 2 {
		t.Errorf("handler calls = %d, want 2", *calls)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4444"
	if got := IPKeyFunc(req); got != "ip:192.0.2.10:4444" {
		t.Errorf("key = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := IPKeyFunc(req); got != "ip:203.0.113.9" {
		t.Errorf("key = %q, forwarded header must win", got)
	}
}
