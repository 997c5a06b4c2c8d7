package middleware

import (
	"strconv"
	"time"

	apperrors "github.com/TripCarbon/trip-carbon-backend/errors"
	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/services"
	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware caps requests per caller per minute. A zero or
// negative limit, or a nil limiter, disables the middleware.
func RateLimitMiddleware(limiter services.RateLimiter, perMinute int) gin.HandlerFunc {
	if limiter == nil || perMinute <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	log := logger.GetLogger().Named("ratelimit")

	return func(c *gin.Context) {
		key := rateLimitKey(c)

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), key, perMinute, time.Minute)
		if err != nil {
			// Fail open so a Redis outage does not block the API.
			log.Warnw("Rate limit check failed, allowing request",
				"key", key,
				"error", err,
			)
			c.Next()
			return
		}

		if !allowed {
			c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(retryAfter).Unix(), 10))
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			_ = c.Error(apperrors.RateLimitExceeded("Too many requests. Please try again later.", int(retryAfter.Seconds())))
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Next()
	}
}

// rateLimitKey identifies the caller. Authenticated requests are limited
// per user ID, anonymous requests per client IP.
func rateLimitKey(c *gin.Context) string {
	if userID := c.GetString(UserIDKey); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}
