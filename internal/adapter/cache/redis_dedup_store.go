package cache

import (
	"context"
	"time"

	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
	"github.com/redis/go-redis/v9"
)

// RedisDedupStore absorbs duplicate payment-event deliveries. Scope is
// the payment provider (stripe/revolut), key is its event id; the
// remembered value is the invoice id the event resolved to.
type RedisDedupStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDedupStore(rdb *redis.Client, ttl time.Duration) *RedisDedupStore {
	return &RedisDedupStore{rdb: rdb, ttl: ttl}
}

func (s *RedisDedupStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	return s.rdb.SetNX(ctx, "payevt:"+scope+":"+key, "1", s.ttl).Result()
}

// Unlock releases a lock whose processing failed, so a redelivery of the
// event is not mistaken for a duplicate until the TTL runs out.
func (s *RedisDedupStore) Unlock(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, "payevt:"+scope+":"+key).Err()
}

func (s *RedisDedupStore) Remember(ctx context.Context, scope, key, value string) error {
	return s.rdb.Set(ctx, "payevt:map:"+scope+":"+key, value, s.ttl).Err()
}

func (s *RedisDedupStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, "payevt:map:"+scope+":"+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	return val, true, err
}

var _ usecase.DedupStore = (*RedisDedupStore)(nil)
