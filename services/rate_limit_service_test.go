package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitServiceAllow(t *testing.T) {
	const key = "user:42"
	const rKey = "tripcarbon:ratelimit:user:42"

	t.Run("under limit", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectIncr(rKey).SetVal(1)
		mock.ExpectExpireNX(rKey, time.Minute).SetVal(true)

		svc := NewRateLimitService(client)
		allowed, retryAfter, err := svc.Allow(context.Background(), key, 10, time.Minute)

		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, retryAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("over limit returns window remainder", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectIncr(rKey).SetVal(11)
		mock.ExpectExpireNX(rKey, time.Minute).SetVal(false)
		mock.ExpectTTL(rKey).SetVal(42 * time.Second)

		svc := NewRateLimitService(client)
		allowed, retryAfter, err := svc.Allow(context.Background(), key, 10, time.Minute)

		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, 42*time.Second, retryAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing ttl falls back to full window", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectIncr(rKey).SetVal(11)
		mock.ExpectExpireNX(rKey, time.Minute).SetVal(false)
		mock.ExpectTTL(rKey).SetVal(-1 * time.Second)

		svc := NewRateLimitService(client)
		allowed, retryAfter, err := svc.Allow(context.Background(), key, 10, time.Minute)

		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, time.Minute, retryAfter)
	})

	t.Run("redis failure surfaces error", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectIncr(rKey).SetErr(assert.AnError)

		svc := NewRateLimitService(client)
		allowed, _, err := svc.Allow(context.Background(), key, 10, time.Minute)

		require.Error(t, err)
		assert.False(t, allowed)
		assert.Contains(t, err.Error(), key)
	})
}
