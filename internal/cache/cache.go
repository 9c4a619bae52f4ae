package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SentCache remembers which provider message confirmed which order.
type SentCache interface {
	StoreSent(ctx context.Context, orderID uuid.UUID, waMessageID string, sentAt time.Time) error
	GetSent(ctx context.Context, orderID uuid.UUID) (SentRecord, bool, error)
}

type SentRecord struct {
	WAMessageID string    `json:"waMessageId"`
	SentAt      time.Time `json:"sentAt"`
}

// Nop is used when Redis is not configured.
type Nop struct{}

func (Nop) StoreSent(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (Nop) GetSent(context.Context, uuid.UUID) (SentRecord, bool, error) {
	return SentRecord{}, false, nil
}
