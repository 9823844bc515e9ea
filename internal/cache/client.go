package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetCustomerCity returns the cached resolved city for a customer. The
// second return reports a cache hit; a cached 0 ("no city") is a valid hit.
func (c *Client) GetCustomerCity(ctx context.Context, customerID int64) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("customer-city:%d", customerID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	cityID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt city cache entry: %w", err)
	}
	return cityID, true, nil
}

// SetCustomerCity caches a customer's resolved city with TTL.
func (c *Client) SetCustomerCity(ctx context.Context, customerID, cityID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("customer-city:%d", customerID), cityID, ttl).Err()
}

// InvalidateCustomerCity drops a cached city, e.g. after an address change.
func (c *Client) InvalidateCustomerCity(ctx context.Context, customerID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("customer-city:%d", customerID)).Err()
}

// ClaimIdempotencyKey claims a checkout idempotency key. Returns false when
// the key was already claimed by an earlier submit.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), "1", ttl).Result()
}

// ReleaseIdempotencyKey frees a claimed key so a failed checkout can be
// retried with the same key.
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}
