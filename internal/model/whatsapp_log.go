package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

// WhatsAppLog is one immutable audit row per inbound or outbound message
// attempt.
type WhatsAppLog struct {
	ID             int64           `json:"id"`
	OrderID        *uuid.UUID      `json:"order_id,omitempty"`
	PhoneE164      string          `json:"phone_e164"`
	Locale         string          `json:"locale,omitempty"`
	TemplateName   string          `json:"template_name,omitempty"`
	Direction      Direction       `json:"direction"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	ResponseStatus *int            `json:"response_status,omitempty"`
	ResponseBody   string          `json:"response_body,omitempty"`
	WAMessageID    string          `json:"wa_message_id,omitempty"`
	ErrorText      string          `json:"error_text,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
