package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(client, zerolog.Nop(), cfg)
	// Tight limit keeps the tests fast
	rl.limits = map[string]RateLimit{
		"POST /api/agents": {3, time.Minute, ipKey},
		"POST /api/deals/": {3, time.Minute, agentKey},
	}
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, method, path, ip, agent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":12345"
	if agent != "" {
		req.Header.Set(AgentHeader, agent)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitEnforced(t *testing.T) {
	rl := newLimiter(t, RateLimiterConfig{})
	handler := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		rec := doRequest(handler, "POST", "/api/agents", "10.0.0.1", "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d within limit", i+1)
	}

	rec := doRequest(handler, "POST", "/api/agents", "10.0.0.1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitPerIP(t *testing.T) {
	rl := newLimiter(t, RateLimiterConfig{})
	handler := rl.Middleware(okHandler())

	for i := 0; i < 4; i++ {
		doRequest(handler, "POST", "/api/agents", "10.0.0.1", "")
	}

	// A different client is unaffected
	rec := doRequest(handler, "POST", "/api/agents", "10.0.0.2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitPerAgent(t *testing.T) {
	rl := newLimiter(t, RateLimiterConfig{})
	handler := rl.Middleware(okHandler())

	for i := 0; i < 4; i++ {
		doRequest(handler, "POST", "/api/deals/x/messages", "10.0.0.1", "agent-a")
	}

	rec := doRequest(handler, "POST", "/api/deals/x/messages", "10.0.0.1", "agent-a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Same IP, different agent: separate budget
	rec = doRequest(handler, "POST", "/api/deals/x/messages", "10.0.0.1", "agent-b")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnlimitedEndpointsPass(t *testing.T) {
	rl := newLimiter(t, RateLimiterConfig{})
	handler := rl.Middleware(okHandler())

	for i := 0; i < 10; i++ {
		rec := doRequest(handler, "GET", "/health", "10.0.0.1", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestWhitelistBypassesLimit(t *testing.T) {
	rl := newLimiter(t, RateLimiterConfig{Whitelist: []string{"10.0.0.1", "192.168.0.0/16"}})
	handler := rl.Middleware(okHandler())

	for i := 0; i < 10; i++ {
		rec := doRequest(handler, "POST", "/api/agents", "10.0.0.1", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	for i := 0; i < 10; i++ {
		rec := doRequest(handler, "POST", "/api/agents", "192.168.4.7", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestBlockedIPRejected(t *testing.T) {
	rl := newLimiter(t, RateLimiterConfig{})
	handler := rl.Middleware(okHandler())

	req := httptest.NewRequest("GET", "/health", nil)
	rl.blocker.Block(req.Context(), "10.0.0.9", time.Hour, "test")

	rec := doRequest(handler, "GET", "/health", "10.0.0.9", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rl.blocker.Unblock(req.Context(), "10.0.0.9")
	rec = doRequest(handler, "GET", "/health", "10.0.0.9", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRealIPHeaderPrecedence(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "1.2.3.4:999"
	assert.Equal(t, "1.2.3.4", RealIP(req))

	req.Header.Set("X-Real-IP", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", RealIP(req))

	req.Header.Set("X-Forwarded-For", "9.9.9.9, 5.6.7.8")
	assert.Equal(t, "9.9.9.9", RealIP(req))

	req.Header.Set("Fly-Client-IP", "7.7.7.7")
	assert.Equal(t, "7.7.7.7", RealIP(req))
}
