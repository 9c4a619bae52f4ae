package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeventeLantos/order-confirm/internal/audit"
	"github.com/LeventeLantos/order-confirm/internal/cache"
	"github.com/LeventeLantos/order-confirm/internal/config"
	"github.com/LeventeLantos/order-confirm/internal/logger"
	"github.com/LeventeLantos/order-confirm/internal/model"
	"github.com/LeventeLantos/order-confirm/internal/phone"
	"github.com/LeventeLantos/order-confirm/internal/repo"
	"github.com/LeventeLantos/order-confirm/internal/template"
)

var errNoPhone = errors.New("order has no phone number")

const (
	defaultClaimTTL = 10 * time.Minute
	releaseTimeout  = 5 * time.Second
)

type SweepResult struct {
	Disabled       bool `json:"disabled,omitempty"`
	NotConfigured  bool `json:"not_configured,omitempty"`
	AlreadyRunning bool `json:"already_running,omitempty"`
	DryRun         bool `json:"dry_run,omitempty"`
	Processed     int  `json:"processed"`
	Sent          int  `json:"sent"`
	Failed        int  `json:"failed"`
	Skipped       int  `json:"skipped"`
}

type orderOutcome int

const (
	outcomeSent orderOutcome = iota
	outcomeFailed
	outcomeSkipped
)

// AutoConfirmer sends the confirmation template to new orders that have aged
// past the configured delay. Orders are handled one at a time with a pause in
// between to stay under provider rate limits. A failed order is left eligible
// and picked up again by the next sweep.
//
// Orders are claimed in the database before any send, so sweeps started from
// other processes never message the same order. Within one process a second
// Run returns AlreadyRunning while a sweep is in progress.
type AutoConfirmer struct {
	running sync.Mutex

	orders     repo.OrderRepository
	dispatcher *Dispatcher
	audit      *audit.Logger
	sent       cache.SentCache
	cfg        config.AutoConfirmConfig
	log        *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewAutoConfirmer(
	orders repo.OrderRepository,
	dispatcher *Dispatcher,
	auditLog *audit.Logger,
	sent cache.SentCache,
	cfg config.AutoConfirmConfig,
	log *zap.Logger,
) *AutoConfirmer {
	if sent == nil {
		sent = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AutoConfirmer{
		orders:     orders,
		dispatcher: dispatcher,
		audit:      auditLog,
		sent:       sent,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// WithClock replaces the time source and the inter-order pause. Used by tests.
func (a *AutoConfirmer) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *AutoConfirmer {
	if now != nil {
		a.now = now
	}
	if sleep != nil {
		a.sleep = sleep
	}
	return a
}

// Run performs one sweep. The returned error is non-nil only when the
// selection query fails or ctx is cancelled mid-sweep; per-order failures
// are counted in the result.
func (a *AutoConfirmer) Run(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	if !a.cfg.Enabled {
		a.log.Debug("auto-confirm disabled; sweep skipped")
		res.Disabled = true
		return res, nil
	}
	if !a.dispatcher.Ready() {
		a.log.Error("auto-confirm sweep skipped: whatsapp credentials missing and dry run is off")
		res.NotConfigured = true
		return res, nil
	}
	if !a.running.TryLock() {
		a.log.Info("auto-confirm sweep already in progress; skipped")
		res.AlreadyRunning = true
		return res, nil
	}
	defer a.running.Unlock()
	res.DryRun = a.dispatcher.DryRun()

	ctx = logger.WithSweepID(ctx, uuid.NewString())
	log := logger.For(ctx, a.log)

	now := a.now()
	orders, err := a.orders.ClaimDueForConfirmation(ctx, now.Add(-a.cfg.Delay), now, a.claimTTL(), a.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("claim orders due for confirmation: %w", err)
	}

	for i, o := range orders {
		if i > 0 {
			if err := a.sleep(ctx, a.cfg.Pause); err != nil {
				log.Warn("auto-confirm sweep interrupted", zap.Error(err), zap.Int("processed", res.Processed))
				a.releaseAll(ctx, orders[i:])
				return res, err
			}
		}

		res.Processed++
		switch a.processOrder(ctx, o) {
		case outcomeSent:
			res.Sent++
		case outcomeFailed:
			res.Failed++
		case outcomeSkipped:
			res.Skipped++
		}
	}

	log.Info("auto-confirm sweep completed",
		zap.Int("selected", len(orders)),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Bool("dry_run", res.DryRun),
	)
	return res, nil
}

func (a *AutoConfirmer) processOrder(ctx context.Context, o model.Order) orderOutcome {
	log := logger.For(ctx, a.log).With(
		zap.String("order_id", o.ID.String()),
		zap.String("code_suivi", o.TrackingCode),
	)

	to, err := resolvePhone(o)
	if err != nil {
		log.Warn("skipping order: phone cannot be normalized", zap.Error(err))
		orderID := o.ID
		a.audit.Append(ctx, &model.WhatsAppLog{
			OrderID:      &orderID,
			Locale:       template.Language(o.Lang),
			TemplateName: a.cfg.TemplateName,
			Direction:    model.Outbound,
			ErrorText:    "skipped: " + err.Error(),
		})
		if err := a.orders.FlagForReview(ctx, o.ID, err.Error()); err != nil {
			log.Error("failed to flag order for review", zap.Error(err))
		}
		return outcomeSkipped
	}

	name, fromFullName := firstName(o)
	msg := template.Build(template.OrderSnapshot{
		FirstName:    name,
		TrackingCode: o.TrackingCode,
		OrderTotal:   o.OrderTotal,
		Locale:       o.Lang,
	}, a.cfg.TemplateName)

	orderID := o.ID
	out, err := a.dispatcher.Dispatch(ctx, Dispatch{OrderID: &orderID, To: to, Message: msg})
	if err != nil {
		log.Warn("confirmation send failed; order stays eligible",
			zap.Error(err),
			zap.Int("status", out.StatusCode),
		)
		if err := a.orders.ReleaseClaim(ctx, o.ID); err != nil {
			log.Warn("failed to release claim; order waits for the claim to expire", zap.Error(err))
		}
		return outcomeFailed
	}

	// Backfill only what was derived here, and never from a dry run.
	var phoneUpdate, nameUpdate string
	if !out.DryRun {
		if o.PhoneE164 != to {
			phoneUpdate = to
		}
		if fromFullName {
			nameUpdate = name
		}
	}

	sentAt := a.now()
	flipped, err := a.orders.MarkConfirmSent(ctx, o.ID, sentAt, phoneUpdate, nameUpdate)
	if err != nil {
		log.Error("message sent but order could not be flagged; it will be sent again once its claim expires",
			zap.Error(err),
			zap.String("wa_message_id", out.MessageID),
		)
		return outcomeFailed
	}
	if !flipped {
		// Only reachable when our claim expired mid-sweep and another sweep
		// sent first.
		log.Warn("confirmation sent but order was already flagged by another sweep",
			zap.String("wa_message_id", out.MessageID),
		)
		return outcomeSkipped
	}

	if err := a.sent.StoreSent(ctx, o.ID, out.MessageID, sentAt); err != nil {
		log.Warn("failed to cache sent confirmation", zap.Error(err))
	}

	log.Info("confirmation sent",
		zap.String("to", to),
		zap.String("wa_message_id", out.MessageID),
		zap.Bool("dry_run", out.DryRun),
	)
	return outcomeSent
}

func (a *AutoConfirmer) claimTTL() time.Duration {
	if a.cfg.ClaimTTL > 0 {
		return a.cfg.ClaimTTL
	}
	return defaultClaimTTL
}

// releaseAll hands unprocessed orders back after an interrupted sweep. It
// runs past ctx cancellation so a shutdown does not strand the claims.
func (a *AutoConfirmer) releaseAll(ctx context.Context, orders []model.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for _, o := range orders {
		if err := a.orders.ReleaseClaim(ctx, o.ID); err != nil {
			logger.For(ctx, a.log).Warn("failed to release claim; order waits for the claim to expire",
				zap.String("order_id", o.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// resolvePhone prefers the stored canonical number and falls back to the raw
// number the customer typed.
func resolvePhone(o model.Order) (string, error) {
	if phone.Valid(o.PhoneE164) {
		return o.PhoneE164, nil
	}
	if strings.TrimSpace(o.ClientPhone) == "" {
		if o.PhoneE164 != "" {
			return phone.Canonical(o.PhoneE164)
		}
		return "", errNoPhone
	}
	return phone.Canonical(o.ClientPhone)
}

// firstName returns the greeting name and whether it had to be taken from
// the full name.
func firstName(o model.Order) (string, bool) {
	if n := strings.TrimSpace(o.FirstName); n != "" {
		return n, false
	}
	if parts := strings.Fields(o.ClientName); len(parts) > 0 {
		return parts[0], true
	}
	return "", false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
