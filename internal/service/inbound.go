package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LeventeLantos/order-confirm/internal/audit"
	"github.com/LeventeLantos/order-confirm/internal/logger"
	"github.com/LeventeLantos/order-confirm/internal/model"
	"github.com/LeventeLantos/order-confirm/internal/phone"
	"github.com/LeventeLantos/order-confirm/internal/repo"
)

var (
	// ErrMalformedDelivery means the body is not a webhook envelope at all.
	// Redelivering it cannot help.
	ErrMalformedDelivery = errors.New("malformed webhook delivery")

	// ErrDeliveryIncomplete means at least one message hit a storage error.
	// Reprocessing the delivery is safe, so the provider should retry it.
	ErrDeliveryIncomplete = errors.New("webhook delivery partially processed")
)

const subscribeMode = "subscribe"

// Provider envelope. Each nesting level stays raw so one bad item does not
// spoil the rest of the delivery.
type webhookBody struct {
	Object string            `json:"object"`
	Entry  []json.RawMessage `json:"entry"`
}

type webhookEntry struct {
	ID      string            `json:"id"`
	Changes []json.RawMessage `json:"changes"`
}

type webhookChange struct {
	Field string `json:"field"`
	Value struct {
		Messages []json.RawMessage `json:"messages"`
	} `json:"value"`
}

type InboundMessage struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *TextBody    `json:"text,omitempty"`
	Button      *Button      `json:"button,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type Button struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (m InboundMessage) replyIDs() []string {
	var ids []string
	if m.Button != nil && m.Button.Payload != "" {
		ids = append(ids, m.Button.Payload)
	}
	if m.Interactive != nil {
		if r := m.Interactive.ButtonReply; r != nil && r.ID != "" {
			ids = append(ids, r.ID)
		}
		if r := m.Interactive.ListReply; r != nil && r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// ReplyText returns the free text of the reply, falling back to the visible
// label of a tapped button.
func (m InboundMessage) ReplyText() string {
	switch {
	case m.Text != nil && strings.TrimSpace(m.Text.Body) != "":
		return m.Text.Body
	case m.Button != nil && m.Button.Text != "":
		return m.Button.Text
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.Title
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return m.Interactive.ListReply.Title
	}
	return ""
}

type InboundSummary struct {
	Messages  int `json:"messages"`
	Confirmed int `json:"confirmed"`
	Canceled  int `json:"canceled"`
	Ignored   int `json:"ignored"`
	Unmatched int `json:"unmatched"`
	Invalid   int `json:"invalid"`
	Malformed int `json:"malformed"`
	Failed    int `json:"failed"`
}

// Inbound applies customer replies to pending orders.
type Inbound struct {
	orders      repo.OrderRepository
	audit       *audit.Logger
	classifier  *Classifier
	verifyToken string
	log         *zap.Logger
	now         func() time.Time
}

func NewInbound(orders repo.OrderRepository, auditLog *audit.Logger, classifier *Classifier, verifyToken string, log *zap.Logger) *Inbound {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Inbound{
		orders:      orders,
		audit:       auditLog,
		classifier:  classifier,
		verifyToken: verifyToken,
		log:         log,
		now:         time.Now,
	}
}

// Verify answers the provider subscription handshake. An unset verify token
// never matches.
func (p *Inbound) Verify(mode, token, challenge string) (string, bool) {
	if mode != subscribeMode || p.verifyToken == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(p.verifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

// HandleDelivery processes one webhook POST body. Malformed entries and
// messages are skipped. Each decodable message is written to the audit trail
// before the order is touched.
func (p *Inbound) HandleDelivery(ctx context.Context, body []byte) (InboundSummary, error) {
	var sum InboundSummary
	log := logger.For(ctx, p.log)

	var b webhookBody
	if err := json.Unmarshal(body, &b); err != nil {
		return sum, fmt.Errorf("%w: %v", ErrMalformedDelivery, err)
	}

	for i, rawEntry := range b.Entry {
		var e webhookEntry
		if err := json.Unmarshal(rawEntry, &e); err != nil {
			log.Warn("skipping malformed webhook entry", zap.Int("entry", i), zap.Error(err))
			sum.Malformed++
			continue
		}

		for _, rawChange := range e.Changes {
			var ch webhookChange
			if err := json.Unmarshal(rawChange, &ch); err != nil {
				log.Warn("skipping malformed webhook change", zap.String("entry_id", e.ID), zap.Error(err))
				sum.Malformed++
				continue
			}
			if ch.Field != "" && ch.Field != "messages" {
				continue
			}
			for _, rawMsg := range ch.Value.Messages {
				var m InboundMessage
				if err := json.Unmarshal(rawMsg, &m); err != nil {
					log.Warn("skipping malformed webhook message", zap.String("entry_id", e.ID), zap.Error(err))
					sum.Malformed++
					continue
				}
				sum.Messages++
				p.handleMessage(ctx, m, rawMsg, &sum)
			}
		}
	}

	log.Info("webhook delivery processed",
		zap.Int("messages", sum.Messages),
		zap.Int("confirmed", sum.Confirmed),
		zap.Int("canceled", sum.Canceled),
		zap.Int("failed", sum.Failed),
	)

	if sum.Failed > 0 {
		return sum, ErrDeliveryIncomplete
	}
	return sum, nil
}

func (p *Inbound) handleMessage(ctx context.Context, m InboundMessage, raw json.RawMessage, sum *InboundSummary) {
	log := logger.For(ctx, p.log).With(
		zap.String("wa_message_id", m.ID),
		zap.String("from", m.From),
	)

	from := phone.Normalize(m.From)
	action := p.classifier.Classify(m)

	entry := &model.WhatsAppLog{
		PhoneE164:   from,
		Direction:   model.Inbound,
		Payload:     raw,
		WAMessageID: m.ID,
	}

	if !phone.Valid(from) {
		entry.ErrorText = "invalid sender phone"
		p.audit.Append(ctx, entry)
		log.Warn("inbound message from unparseable phone")
		sum.Invalid++
		return
	}

	target, actionable := action.TargetStatus()

	var order *model.Order
	if actionable {
		o, err := p.orders.FindLatestPendingByPhone(ctx, from)
		if err != nil {
			entry.ErrorText = "order lookup failed: " + err.Error()
			p.audit.Append(ctx, entry)
			log.Error("failed to look up pending order", zap.Error(err))
			sum.Failed++
			return
		}
		if o != nil {
			id := o.ID
			entry.OrderID = &id
			entry.Locale = o.Lang
		}
		order = o
	}

	p.audit.Append(ctx, entry)

	if !actionable {
		log.Debug("inbound message ignored: no confirm or cancel intent")
		sum.Ignored++
		return
	}
	if order == nil {
		log.Info("no pending order for sender", zap.String("action", string(action)))
		sum.Unmatched++
		return
	}

	log = log.With(zap.String("order_id", order.ID.String()), zap.String("action", string(action)))

	moved, err := p.orders.TransitionFromPending(ctx, order.ID, target, p.now())
	if err != nil {
		log.Error("failed to update order status", zap.Error(err))
		sum.Failed++
		return
	}
	if !moved {
		log.Info("order no longer pending; reply has no effect")
		sum.Unmatched++
		return
	}

	switch target {
	case model.StatusConfirmed:
		sum.Confirmed++
	case model.StatusCanceled:
		sum.Canceled++
	}
	log.Info("order status updated from customer reply", zap.String("status", string(target)))
}
