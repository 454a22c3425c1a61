package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts an in-memory Redis for the duration of the test.
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCacheFromClient(client), mr
}

func TestRedisCache_GetOrSet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	calls := 0
	fetch := func() ([]string, error) {
		calls++
		return []string{"P1", "P2"}, nil
	}

	got, err := GetOrSet(cache, ctx, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, got)

	got, err = GetOrSet(cache, ctx, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, got)
	assert.Equal(t, 1, calls)

	mr.FastForward(2 * time.Minute)
	_, err = GetOrSet(cache, ctx, "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRedisCache_GetOrSetPropagatesError(t *testing.T) {
	cache, mr := setupTestRedis(t)

	boom := errors.New("boom")
	_, err := GetOrSet(cache, context.Background(), "k", time.Minute, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestRedisCache_MarkPaymentConfirmed(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	first, err := cache.MarkPaymentConfirmed(ctx, "PAY1", "session-P1-1700000000000", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := cache.MarkPaymentConfirmed(ctx, "PAY1", "session-P1-1700000000000", time.Hour)
	require.NoError(t, err)
	assert.False(t, second)

	key, err := cache.ConfirmedSessionKey(ctx, "PAY1")
	require.NoError(t, err)
	assert.Equal(t, "session-P1-1700000000000", key)

	missing, err := cache.ConfirmedSessionKey(ctx, "PAY2")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRedisCache_CountDelivery(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := cache.CountDelivery(ctx, "PAY1")
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	assert.True(t, mr.TTL(deliveryCounterPrefix+"PAY1") > 0)
}
