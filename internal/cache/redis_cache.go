package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

var _ SentCache = (*RedisCache)(nil)

func sentKey(orderID uuid.UUID) string {
	return "wa:confirm:" + orderID.String()
}

func (c *RedisCache) StoreSent(ctx context.Context, orderID uuid.UUID, waMessageID string, sentAt time.Time) error {
	val := SentRecord{
		WAMessageID: waMessageID,
		SentAt:      sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, sentKey(orderID), b, c.ttl).Err()
}

func (c *RedisCache) GetSent(ctx context.Context, orderID uuid.UUID) (SentRecord, bool, error) {
	raw, err := c.rdb.Get(ctx, sentKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SentRecord{}, false, nil
	}
	if err != nil {
		return SentRecord{}, false, err
	}

	var rec SentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return SentRecord{}, false, err
	}
	return rec, true, nil
}
