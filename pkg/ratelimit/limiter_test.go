package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstThenDeny(t *testing.T) {
	tb := NewTokenBucket(5, 1.0)

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, tb.Allow(), "burst exhausted, next request should be denied")
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(2, 50.0)

	tb.Allow()
	tb.Allow()
	require.False(t, tb.Allow())

	// 50 tokens/s refills one token well within 100ms.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, tb.Allow())
}

func TestTokenBucketReset(t *testing.T) {
	tb := NewTokenBucket(3, 0.01)

	for i := 0; i < 3; i++ {
		tb.Allow()
	}
	require.False(t, tb.Allow())

	tb.Reset()
	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "request %d should be allowed after reset", i+1)
	}
}

func TestKeyedLimiterIsolation(t *testing.T) {
	l := NewKeyedLimiter(1, 0.01, 0)
	defer l.Close()

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// A different key has its own bucket.
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestKeyedLimiterClose(t *testing.T) {
	l := NewKeyedLimiter(1, 1, 5*time.Millisecond)

	require.True(t, l.Allow("10.0.0.1"))

	// Close stops the cleanup goroutine and is safe to repeat.
	l.Close()
	l.Close()

	// The limiter still serves requests after Close.
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestMiddlewareThrottlesSensitiveRoutes(t *testing.T) {
	m := NewMiddleware(&Config{
		SensitiveCapacity:   2,
		SensitiveRefillRate: 0.01,
		GeneralCapacity:     100,
		GeneralRefillRate:   1,
	})
	defer m.Close()
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/forgot-password"))
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/forgot-password"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "/forgot-password"))

	// General traffic from the same IP is still allowed.
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/signup/username-check"))
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, "203.0.113.7", clientIP(req))
}
