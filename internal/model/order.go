package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusNew       OrderStatus = "nouvelle"
	StatusConfirmed OrderStatus = "confirmee"
	StatusPreparing OrderStatus = "en_preparation"
	StatusShipped   OrderStatus = "expediee"
	StatusDelivered OrderStatus = "livree"
	StatusCanceled  OrderStatus = "annulee"
	StatusReturned  OrderStatus = "retournee"
)

// Order is the subset of the storefront order the messaging core reads and
// updates. Empty strings stand for NULL columns.
type Order struct {
	ID           uuid.UUID
	TrackingCode string

	PhoneE164   string
	ClientPhone string
	FirstName   string
	ClientName  string

	Status      OrderStatus
	ConfirmedAt *time.Time
	CanceledAt  *time.Time

	WhatsAppConfirmSent bool
	WhatsAppConfirmAt   *time.Time
	NeedsReview         bool

	Lang       string
	OrderTotal decimal.NullDecimal
	CreatedAt  time.Time
}
