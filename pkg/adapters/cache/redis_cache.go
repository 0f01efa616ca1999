// Package cache holds the Redis read-through cache for tag lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
)

const keyPrefix = "nfc:tag:"

type RedisTagCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTagCache(client *redis.Client, ttl time.Duration) *RedisTagCache {
	return &RedisTagCache{client: client, ttl: ttl}
}

// NewClient parses a redis:// URL and checks the connection.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Get returns (nil, nil) on a miss.
func (c *RedisTagCache) Get(ctx context.Context, uid string) (*domain.Tag, error) {
	raw, err := c.client.Get(ctx, keyPrefix+uid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tag domain.Tag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("decode cached tag %s: %w", uid, err)
	}
	return &tag, nil
}

func (c *RedisTagCache) Set(ctx context.Context, tag *domain.Tag) error {
	raw, err := json.Marshal(tag)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+tag.UID, raw, c.ttl).Err()
}

func (c *RedisTagCache) Invalidate(ctx context.Context, uid string) error {
	return c.client.Del(ctx, keyPrefix+uid).Err()
}
