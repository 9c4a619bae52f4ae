package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/LeventeLantos/order-confirm/internal/audit"
	"github.com/LeventeLantos/order-confirm/internal/client"
	"github.com/LeventeLantos/order-confirm/internal/model"
	"github.com/LeventeLantos/order-confirm/internal/template"
)

type SendClient interface {
	Send(ctx context.Context, payload template.Payload) (client.SendResult, error)
	Configured() bool
}

const dryRunBody = `{"dry_run":true}`

// Dispatcher sends one template message and records the attempt in the
// audit trail. In dry-run mode the provider call is replaced by a synthetic
// success; everything else happens as in a live send.
type Dispatcher struct {
	client SendClient
	audit  *audit.Logger
	dryRun bool
}

func NewDispatcher(c SendClient, a *audit.Logger, dryRun bool) *Dispatcher {
	return &Dispatcher{client: c, audit: a, dryRun: dryRun}
}

type Dispatch struct {
	OrderID *uuid.UUID
	To      string
	Message template.Message
}

type Outcome struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
	MessageID  string `json:"wa_message_id,omitempty"`
	DryRun     bool   `json:"dry_run"`
}

func (d *Dispatcher) DryRun() bool { return d.dryRun }

// Ready reports whether a dispatch can succeed without a configuration error.
func (d *Dispatcher) Ready() bool {
	return d.dryRun || d.client.Configured()
}

func (d *Dispatcher) Dispatch(ctx context.Context, in Dispatch) (Outcome, error) {
	payload := in.Message.Payload(in.To)
	raw, err := json.Marshal(payload)
	if err != nil {
		return Outcome{}, err
	}

	entry := &model.WhatsAppLog{
		OrderID:      in.OrderID,
		PhoneE164:    in.To,
		Locale:       in.Message.Language,
		TemplateName: in.Message.Name,
		Direction:    model.Outbound,
		Payload:      raw,
	}

	if d.dryRun {
		out := Outcome{
			StatusCode: 200,
			Body:       dryRunBody,
			MessageID:  "dry-run-" + uuid.NewString(),
			DryRun:     true,
		}
		entry.ResponseStatus = &out.StatusCode
		entry.ResponseBody = out.Body
		entry.WAMessageID = out.MessageID
		d.audit.Append(ctx, entry)
		return out, nil
	}

	res, sendErr := d.client.Send(ctx, payload)
	out := Outcome{StatusCode: res.StatusCode, Body: res.Body, MessageID: res.MessageID}

	if res.StatusCode != 0 {
		status := res.StatusCode
		entry.ResponseStatus = &status
	}
	entry.ResponseBody = res.Body
	entry.WAMessageID = res.MessageID
	if sendErr != nil {
		entry.ErrorText = sendErr.Error()
	}
	d.audit.Append(ctx, entry)

	return out, sendErr
}
