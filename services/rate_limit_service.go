package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is the contract consumed by the rate limit middleware.
type RateLimiter interface {
	// Allow records one request against key and reports whether it fits
	// within limit requests per window. When the limit is exceeded it
	// returns the time remaining until the window resets.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// RateLimitService implements fixed-window rate limiting on Redis. Each
// caller key maps to a counter that expires when its window ends.
type RateLimitService struct {
	redis     *redis.Client
	keyPrefix string
}

var _ RateLimiter = (*RateLimitService)(nil)

func NewRateLimitService(client *redis.Client) *RateLimitService {
	return &RateLimitService{
		redis:     client,
		keyPrefix: "tripcarbon:ratelimit:",
	}
}

func (s *RateLimitService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	rKey := s.keyPrefix + key

	// ExpireNX only arms a deadline when the key has none, so the window
	// starts at the first request and later hits do not renew it.
	pipe := s.redis.Pipeline()
	incr := pipe.Incr(ctx, rKey)
	pipe.ExpireNX(ctx, rKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit check for %s: %w", key, err)
	}

	if incr.Val() > int64(limit) {
		ttl, err := s.redis.TTL(ctx, rKey).Result()
		if err != nil {
			return false, 0, fmt.Errorf("rate limit ttl for %s: %w", key, err)
		}
		if ttl < 0 {
			ttl = window
		}
		return false, ttl, nil
	}

	return true, 0, nil
}
