package channels

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores channel_id -> parent_url mappings. Entries are advisory.
type Cache interface {
	Get(ctx context.Context, channelID string) (string, bool, error)
	Put(ctx context.Context, channelID, parentURL string) error
}

// RedisCache shares resolved channels across gateway instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "castgate:channel:", ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, channelID string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+channelID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisCache) Put(ctx context.Context, channelID, parentURL string) error {
	return r.client.Set(ctx, r.prefix+channelID, parentURL, r.ttl).Err()
}
