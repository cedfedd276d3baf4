package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInternalAuthMiddleware(t *testing.T) {
	r := newRouter(InternalAuthMiddleware("s3cret"))

	assert.Equal(t, http.StatusUnauthorized, get(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, map[string]string{APIKeyHeader: "wrong"}).Code)
	assert.Equal(t, http.StatusOK, get(r, map[string]string{APIKeyHeader: "s3cret"}).Code)
}

func TestInternalAuthMiddleware_Misconfigured(t *testing.T) {
	r := newRouter(InternalAuthMiddleware(""))
	assert.Equal(t, http.StatusInternalServerError, get(r, map[string]string{APIKeyHeader: ""}).Code)
}

func TestIPRateLimiter(t *testing.T) {
	rl := NewIPRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	r := newRouter(rl.Middleware())

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, nil).Code)
	assert.Equal(t, 1, rl.Len())
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	rl := NewIPRateLimiter(RateLimiterConfig{IdleTTL: time.Minute})
	rl.now = func() time.Time { return now }

	rl.GetLimiter("10.0.0.1")
	now = now.Add(2 * time.Minute)
	rl.GetLimiter("10.0.0.2")

	assert.Equal(t, 1, rl.CleanupOldLimiters())
	assert.Equal(t, 1, rl.Len())
}
