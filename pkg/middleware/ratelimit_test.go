package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg *RateLimitConfig) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(cfg)
	rl.now = clock.Now
	return rl, clock
}

func allow(l Limiter, key string) bool {
	d, _ := l.Take(context.Background(), key)
	return d.Allowed
}

func TestRateLimiter_Take(t *testing.T) {
	cfg := &RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second, BurstSize: 2}
	limiter, clock := newTestLimiter(cfg)

	allowed := 0
	var last Decision
	for i := 0; i < 20; i++ {
		d, err := limiter.Take(context.Background(), "user:u1")
		require.NoError(t, err)
		if d.Allowed {
			allowed++
		}
		last = d
	}

	assert.Equal(t, 12, allowed)
	assert.False(t, last.Allowed)
	assert.Equal(t, 10, last.Limit)
	assert.Equal(t, 100*time.Millisecond, last.RetryAfter)

	clock.Advance(100 * time.Millisecond)
	d, err := limiter.Take(context.Background(), "user:u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiter_RefillCapsAtCapacity(t *testing.T) {
	limiter, clock := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Second, BurstSize: 0})

	for i := 0; i < 5; i++ {
		assert.True(t, allow(limiter, "k"))
	}
	assert.False(t, allow(limiter, "k"))

	clock.Advance(time.Hour)
	allowed := 0
	for i := 0; i < 10; i++ {
		if allow(limiter, "k") {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestRateLimiter_KeysIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})

	assert.True(t, allow(limiter, "ip:10.0.0.1"))
	assert.False(t, allow(limiter, "ip:10.0.0.1"))
	assert.True(t, allow(limiter, "ip:10.0.0.2"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter, clock := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: 100 * time.Millisecond})

	for _, key := range []string{"user1", "user2", "user3"} {
		allow(limiter, key)
	}
	assert.Len(t, limiter.buckets, 3)

	clock.Advance(300 * time.Millisecond)
	limiter.Cleanup()
	assert.Empty(t, limiter.buckets)
}

func TestRateLimiter_Concurrency(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Hour, BurstSize: 10})

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if allow(limiter, "concurrent-user") {
					atomic.AddInt64(&allowed, 1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(110), allowed)
}

func TestRateLimiter_StartCleanupStopsOnCancel(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	limiter.StartCleanup(ctx, observability.NewLogger(observability.ErrorLevel, nil))

	allow(limiter, "k")
	assert.Eventually(t, func() bool {
		limiter.mu.RLock()
		defer limiter.mu.RUnlock()
		return len(limiter.buckets) == 0
	}, time.Second, 10*time.Millisecond)
	cancel()
}

type erroringLimiter struct{}

func (erroringLimiter) Take(ctx context.Context, key string) (Decision, error) {
	return Decision{Allowed: true}, errors.New("connection refused")
}

func TestRateLimitMiddleware_Handler(t *testing.T) {
	limiter, _ := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	handler := NewRateLimitMiddleware(limiter, metrics).Handler(okHandler(nil))

	send := func(remoteAddr, userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/check-update", nil)
		req.RemoteAddr = remoteAddr
		if userID != "" {
			req = req.WithContext(WithAuthContext(req.Context(), &auth.AuthContext{Identity: &auth.Identity{ID: userID}}))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000", "").Code)
	first := send("10.0.0.1:1001", "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	rejected := send("10.0.0.1:1002", "")
	require.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Equal(t, "30", rejected.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rejected.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.Equal(t, float64(30), body["retry_after"])

	// same address, but authenticated callers get their own bucket
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1003", "u1").Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitRejections.WithLabelValues("ip")))
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	handler := NewRateLimitMiddleware(erroringLimiter{}, nil).Handler(okHandler(nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/check-update", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.Equal(t, 60, cfg.RequestsPerWindow)
	assert.Equal(t, time.Minute, cfg.WindowDuration)
	assert.GreaterOrEqual(t, cfg.BurstSize, 0)
}
