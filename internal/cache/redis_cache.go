package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bingopos/backend/internal/domain"
)

type RedisWarningCache struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisWarningCache(client *redis.Client) *RedisWarningCache {
	return &RedisWarningCache{client: client, prefix: "bingopos:warning:"}
}

func (c *RedisWarningCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisWarningCache) Get(ctx context.Context, key string) (*domain.CashierWarning, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var warning domain.CashierWarning
	if err := json.Unmarshal([]byte(val), &warning); err != nil {
		return nil, false, err
	}
	return &warning, true, nil
}

func (c *RedisWarningCache) Set(ctx context.Context, key string, value *domain.CashierWarning, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, payload, ttl).Err()
}
