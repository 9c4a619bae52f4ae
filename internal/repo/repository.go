package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/order-confirm/internal/model"
)

type OrderRepository interface {
	// ClaimDueForConfirmation returns new orders created before createdBefore
	// that were never messaged and are not parked for manual review, oldest
	// first, and stamps them as claimed at claimedAt. An order stays invisible
	// to other sweeps until its claim is released or older than lease.
	ClaimDueForConfirmation(ctx context.Context, createdBefore, claimedAt time.Time, lease time.Duration, limit int) ([]model.Order, error)

	// ReleaseClaim makes an unsent order eligible again right away.
	ReleaseClaim(ctx context.Context, id uuid.UUID) error

	// MarkConfirmSent flips whatsapp_confirm_sent once. Empty phone or name
	// keep the stored values. Reports false when the flag was already set.
	MarkConfirmSent(ctx context.Context, id uuid.UUID, sentAt time.Time, phoneE164, firstName string) (bool, error)

	FlagForReview(ctx context.Context, id uuid.UUID, reason string) error

	// FindLatestPendingByPhone matches the canonical number or any spelling of
	// it in the raw checkout phone. Returns nil, nil when no new order matches.
	FindLatestPendingByPhone(ctx context.Context, phoneE164 string) (*model.Order, error)

	// TransitionFromPending moves a new order to to, stamping the matching
	// timestamp. Reports false when the order was no longer new.
	TransitionFromPending(ctx context.Context, id uuid.UUID, to model.OrderStatus, at time.Time) (bool, error)
}

type LogFilter struct {
	OrderID *uuid.UUID
	Limit   int
	Offset  int
}

type WhatsAppLogRepository interface {
	Insert(ctx context.Context, entry *model.WhatsAppLog) error
	List(ctx context.Context, f LogFilter) ([]model.WhatsAppLog, error)
}
