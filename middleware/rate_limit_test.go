package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeLimiter struct {
	allowed    bool
	retryAfter time.Duration
	err        error
	keys       []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, time.Duration, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.retryAfter, f.err
}

func rateLimitRouter(limiter *fakeLimiter, perMinute int, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler())
	for _, h := range pre {
		router.Use(h)
	}
	router.Use(RateLimitMiddleware(limiter, perMinute))
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return router
}

func TestRateLimitMiddleware_Allows(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	router := rateLimitRouter(limiter, 5)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Empty(t, w.Header().Get("Retry-After"))
	assert.Len(t, limiter.keys, 1)
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	limiter := &fakeLimiter{allowed: false, retryAfter: 42 * time.Second}
	router := rateLimitRouter(limiter, 5)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, w.Body.String(), "Too many requests")
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: assert.AnError}
	router := rateLimitRouter(limiter, 5)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware_KeysByUserWhenAuthenticated(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	setUser := func(c *gin.Context) {
		c.Set(UserIDKey, "rider-7")
		c.Next()
	}
	router := rateLimitRouter(limiter, 5, setUser)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"user:rider-7"}, limiter.keys)
}

func TestRateLimitMiddleware_KeysByIPWhenAnonymous(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	router := rateLimitRouter(limiter, 5)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "203.0.113.9:4444"
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ip:203.0.113.9"}, limiter.keys)
}

func TestRateLimitMiddleware_DisabledWhenZeroLimit(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	router := rateLimitRouter(limiter, 0)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, limiter.keys)
}
