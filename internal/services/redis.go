package services

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	catalogCacheKey        = "catalog:psychologists"
	confirmedPaymentPrefix = "payment:confirmed:"
	deliveryCounterPrefix  = "payment:deliveries:"
)

// RedisCache wraps the Redis client with JSON values.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redisURL and pings it.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get decodes the value at key into dest. A missing key returns redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// GetOrSet returns the cached value at key, or calls fn and caches its
// result. Cache write failures are ignored.
func GetOrSet[T any](c *RedisCache, ctx context.Context, key string, expiration time.Duration, fn func() (T, error)) (T, error) {
	var result T

	if err := c.Get(ctx, key, &result); err == nil {
		return result, nil
	}

	result, err := fn()
	if err != nil {
		return result, err
	}

	_ = c.Set(ctx, key, result, expiration)
	return result, nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// SetNX sets key only when absent and reports whether it was set.
func (c *RedisCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, data, expiration).Result()
}

// Increment bumps a counter and refreshes its expiry.
func (c *RedisCache) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MarkPaymentConfirmed records that paymentID produced sessionKey. It
// reports false when the payment was already marked.
func (c *RedisCache) MarkPaymentConfirmed(ctx context.Context, paymentID, sessionKey string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, confirmedPaymentPrefix+paymentID, sessionKey, ttl)
}

// ConfirmedSessionKey returns the session key recorded for paymentID, or
// "" when none is.
func (c *RedisCache) ConfirmedSessionKey(ctx context.Context, paymentID string) (string, error) {
	var key string
	err := c.Get(ctx, confirmedPaymentPrefix+paymentID, &key)
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read confirmed payment %s: %w", paymentID, err)
	}
	return key, nil
}

// CountDelivery increments the notification counter of paymentID.
func (c *RedisCache) CountDelivery(ctx context.Context, paymentID string) (int64, error) {
	return c.Increment(ctx, deliveryCounterPrefix+paymentID, 24*time.Hour)
}

// InvalidateCatalog drops the cached psychologist listing.
func (c *RedisCache) InvalidateCatalog(ctx context.Context) error {
	return c.Delete(ctx, catalogCacheKey)
}
