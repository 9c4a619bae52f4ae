package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/LeventeLantos/order-confirm/internal/phone"
	"github.com/LeventeLantos/order-confirm/internal/template"
)

type TestSendRequest struct {
	Phone        string              `json:"phone"`
	FirstName    string              `json:"first_name"`
	TrackingCode string              `json:"code_suivi"`
	OrderTotal   decimal.NullDecimal `json:"order_total"`
	Locale       string              `json:"locale"`
	TemplateName string              `json:"template_name"`
}

type TestSendResult struct {
	To       string `json:"to"`
	Template string `json:"template"`
	Language string `json:"language"`
	Outcome
}

// TestSender pushes a one-off confirmation to an arbitrary number so operators
// can check credentials and template approval without touching any order.
type TestSender struct {
	dispatcher      *Dispatcher
	defaultTemplate string
}

func NewTestSender(d *Dispatcher, defaultTemplate string) *TestSender {
	return &TestSender{dispatcher: d, defaultTemplate: defaultTemplate}
}

// Send returns an error wrapping phone.ErrInvalid for an undeliverable
// number, client.ErrNotConfigured when live credentials are missing, or the
// provider error. Every attempt past phone validation is audited.
func (s *TestSender) Send(ctx context.Context, req TestSendRequest) (TestSendResult, error) {
	to, err := phone.Canonical(req.Phone)
	if err != nil {
		return TestSendResult{}, err
	}

	name := strings.TrimSpace(req.TemplateName)
	if name == "" {
		name = s.defaultTemplate
	}

	msg := template.Build(template.OrderSnapshot{
		FirstName:    req.FirstName,
		TrackingCode: req.TrackingCode,
		OrderTotal:   req.OrderTotal,
		Locale:       req.Locale,
	}, name)

	out, err := s.dispatcher.Dispatch(ctx, Dispatch{To: to, Message: msg})
	return TestSendResult{
		To:       to,
		Template: msg.Name,
		Language: msg.Language,
		Outcome:  out,
	}, err
}
