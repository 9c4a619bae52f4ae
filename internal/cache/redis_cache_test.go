package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, NewRedisCache(rdb, ttl)
}

func TestRedisCache_StoreSent_Success(t *testing.T) {
	t.Parallel()

	mr, cache := newTestCache(t, 10*time.Second)

	ctx := context.Background()
	orderID := uuid.MustParse("3f1c2a9e-6d0b-4c55-9a57-1f0d7c2b8e11")
	sentAt := time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)

	if err := cache.StoreSent(ctx, orderID, "wamid.123", sentAt); err != nil {
		t.Fatalf("StoreSent() error: %v", err)
	}

	key := "wa:confirm:3f1c2a9e-6d0b-4c55-9a57-1f0d7c2b8e11"

	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}

	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("failed to get key %q: %v", key, err)
	}

	var got SentRecord
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}

	if got.WAMessageID != "wamid.123" {
		t.Fatalf("expected WAMessageID %q, got %q", "wamid.123", got.WAMessageID)
	}
	if !got.SentAt.Equal(sentAt) {
		t.Fatalf("expected SentAt %v, got %v", sentAt, got.SentAt)
	}
}

func TestRedisCache_GetSent_RoundTripAndMiss(t *testing.T) {
	t.Parallel()

	_, cache := newTestCache(t, time.Minute)
	ctx := context.Background()

	missing := uuid.New()
	if _, ok, err := cache.GetSent(ctx, missing); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	orderID := uuid.New()
	if err := cache.StoreSent(ctx, orderID, "first", time.Now()); err != nil {
		t.Fatalf("first StoreSent() error: %v", err)
	}
	if err := cache.StoreSent(ctx, orderID, "second", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("second StoreSent() error: %v", err)
	}

	rec, ok, err := cache.GetSent(ctx, orderID)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if rec.WAMessageID != "second" {
		t.Fatalf("expected overwritten WAMessageID %q, got %q", "second", rec.WAMessageID)
	}
}

func TestRedisCache_StoreSent_ContextCanceled(t *testing.T) {
	t.Parallel()

	_, cache := newTestCache(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cache.StoreSent(ctx, uuid.New(), "x", time.Now()); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}

func TestNop(t *testing.T) {
	t.Parallel()

	var c SentCache = Nop{}
	if err := c.StoreSent(context.Background(), uuid.New(), "x", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := c.GetSent(context.Background(), uuid.New()); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}
