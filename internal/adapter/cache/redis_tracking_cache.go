package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTrackingCache keeps recent AWB tracking responses so the public
// tracking endpoint does not hammer the carrier on every page refresh.
type RedisTrackingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTrackingCache(rdb *redis.Client, ttl time.Duration) *RedisTrackingCache {
	return &RedisTrackingCache{rdb: rdb, ttl: ttl}
}

func (c *RedisTrackingCache) Set(ctx context.Context, awbNumber string, payload []byte) error {
	return c.rdb.Set(ctx, "awb:track:"+awbNumber, payload, c.ttl).Err()
}

func (c *RedisTrackingCache) Get(ctx context.Context, awbNumber string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, "awb:track:"+awbNumber).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}
