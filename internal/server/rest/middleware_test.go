package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strconvMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)
	assert.Equal(t, "abc123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	env.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 32)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.LoginRateLimit = 0.001
		o.LoginRateBurst = 2
	})

	body := map[string]string{"email": "x@example.com", "password": "pw"}
	for i := 0; i < 2; i++ {
		rec, _ := env.do(t, http.MethodPost, "/login", "", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec, out := env.do(t, http.MethodPost, "/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.True(t, out.isError())

	// other routes are not limited
	rec, _ = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// loginFrom posts a failing login carrying forwardedFor, from the fixed
// httptest peer address.
func (env *testEnv) loginFrom(t *testing.T, forwardedFor string) int {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"email": "x@example.com", "password": "pw"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rec, _ := env.serve(t, req)
	return rec.Code
}

func TestLoginRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.LoginRateLimit = 0.001
		o.LoginRateBurst = 1
	})

	codes := make([]int, 0, 4)
	for i := 1; i <= 4; i++ {
		codes = append(codes, env.loginFrom(t, fmt.Sprintf("203.0.113.%d", i)))
	}
	assert.Equal(t, []int{
		http.StatusBadRequest,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
	}, codes)

	env.srv.limiter.mu.Lock()
	defer env.srv.limiter.mu.Unlock()
	assert.Len(t, env.srv.limiter.limiters, 1)
}

func TestLoginRateLimit_TrustedProxyForwardsClientIP(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.LoginRateLimit = 0.001
		o.LoginRateBurst = 1
		// httptest requests come from 192.0.2.1
		o.TrustedProxies = []string{"192.0.2.0/24"}
	})

	assert.Equal(t, http.StatusBadRequest, env.loginFrom(t, "203.0.113.1"))
	assert.Equal(t, http.StatusBadRequest, env.loginFrom(t, "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, env.loginFrom(t, "203.0.113.1"))
}

func TestIPRateLimiterPrune(t *testing.T) {
	rl := newIPRateLimiter(1000, 1)
	rl.get("a").Allow()
	rl.get("b")

	time.Sleep(5 * time.Millisecond)
	rl.prune()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}

func TestHealthReadyMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.srv.ready.Store(false)
	rec, _ = env.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	env.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "storykeeper_http_requests_total"))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, out := env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, out.isError())
}

func TestRenderFailureBecomes500(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.router.GET("/unrenderable", func(c *gin.Context) {
		ok(c, http.StatusOK, "", gin.H{"value": math.Inf(1)})
	})

	rec, out := env.do(t, http.MethodGet, "/unrenderable", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, out.isError())
	assert.Equal(t, "Internal server error", out.message())
}

func TestPanicIsRecoveredAndObserved(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.router.GET("/explode", func(*gin.Context) { panic("boom") })

	rec, out := env.do(t, http.MethodGet, "/explode", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, out.isError())

	rec = httptest.NewRecorder()
	env.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `route="/explode",status="500"`)
}
