package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/emiac1617/payment-reconciliation/internal/domain"
)

type RedisSourceCache struct {
	client *redis.Client
}

func NewRedisSourceCache(addr string, password string, db int) *RedisSourceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSourceCache{client: client}
}

func (c *RedisSourceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSourceCache) Close() error {
	return c.client.Close()
}

func (c *RedisSourceCache) Get(ctx context.Context, key string) (*domain.SourceSnapshot, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snap domain.SourceSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

func (c *RedisSourceCache) Set(ctx context.Context, key string, value *domain.SourceSnapshot, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisSourceCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
