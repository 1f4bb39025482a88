package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "kasirpos:sale:idem:"

type RedisSaleIdempotency struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisSaleIdempotency(addr string, password string, db int) *RedisSaleIdempotency {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSaleIdempotency{client: client, keyPrefix: defaultKeyPrefix}
}

func (c *RedisSaleIdempotency) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSaleIdempotency) Close() error {
	return c.client.Close()
}

func (c *RedisSaleIdempotency) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	fullKey := c.keyPrefix + key
	ok, err := c.client.SetNX(ctx, fullKey, pendingMarker, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	val, err := c.client.Get(ctx, fullKey).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = c.client.SetNX(ctx, fullKey, pendingMarker, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		return "", ok, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == pendingMarker {
		return "", false, nil
	}
	return val, false, nil
}

func (c *RedisSaleIdempotency) Complete(ctx context.Context, key string, saleID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, saleID, ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (c *RedisSaleIdempotency) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
