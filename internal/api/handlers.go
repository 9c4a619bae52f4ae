package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeventeLantos/order-confirm/internal/cache"
	"github.com/LeventeLantos/order-confirm/internal/client"
	"github.com/LeventeLantos/order-confirm/internal/logger"
	"github.com/LeventeLantos/order-confirm/internal/phone"
	"github.com/LeventeLantos/order-confirm/internal/repo"
	"github.com/LeventeLantos/order-confirm/internal/scheduler"
	"github.com/LeventeLantos/order-confirm/internal/service"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
	maxBodyBytes    = 1 << 20
)

type SchedulerControl interface {
	Start() bool
	Stop() bool
	Status() scheduler.Status
}

type Sweeper interface {
	Run(ctx context.Context) (service.SweepResult, error)
}

type WebhookProcessor interface {
	Verify(mode, token, challenge string) (string, bool)
	HandleDelivery(ctx context.Context, body []byte) (service.InboundSummary, error)
}

type TestSender interface {
	Send(ctx context.Context, req service.TestSendRequest) (service.TestSendResult, error)
}

type Deps struct {
	Scheduler SchedulerControl
	Sweeper   Sweeper
	Webhook   WebhookProcessor
	Tester    TestSender
	Logs      repo.WhatsAppLogRepository
	Sent      cache.SentCache
	Log       *zap.Logger
}

type Handler struct {
	sched   SchedulerControl
	sweeper Sweeper
	webhook WebhookProcessor
	tester  TestSender
	logs    repo.WhatsAppLogRepository
	sent    cache.SentCache
	log     *zap.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Sent == nil {
		d.Sent = cache.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Handler{
		sched:   d.Scheduler,
		sweeper: d.Sweeper,
		webhook: d.Webhook,
		tester:  d.Tester,
		logs:    d.Logs,
		sent:    d.Sent,
		log:     d.Log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.sched.Status())
}

// RunAutoConfirm performs one sweep synchronously. A sweep already running
// in this process answers 409.
func (h *Handler) RunAutoConfirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Run(r.Context())
	if err != nil {
		h.log.Error("manual auto-confirm sweep failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "result": res})
		return
	}
	if res.AlreadyRunning {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := h.webhook.Verify(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		h.log.Warn("webhook verification rejected", zap.String("mode", q.Get("hub.mode")))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// ReceiveWebhook acknowledges a delivery once every message in it has been
// handled. Storage failures answer 500 so the provider redelivers.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithDeliveryID(r.Context(), uuid.NewString())
	log := logger.For(ctx, h.log)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", zap.Error(err))
		http.Error(w, "cannot read body", http.StatusInternalServerError)
		return
	}

	if _, err := h.webhook.HandleDelivery(ctx, body); err != nil {
		if errors.Is(err, service.ErrMalformedDelivery) {
			log.Warn("rejecting malformed webhook delivery", zap.Error(err))
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		log.Error("webhook delivery not fully processed", zap.Error(err))
		http.Error(w, "retry later", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

func (h *Handler) TestSend(w http.ResponseWriter, r *http.Request) {
	var req service.TestSendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "phone is required"})
		return
	}

	res, err := h.tester.Send(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, phone.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, client.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	default:
		h.log.Warn("test send failed", zap.Error(err), zap.Int("status", res.StatusCode))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "result": res})
	}
}

func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := repo.LogFilter{
		Limit:  parseInt(q.Get("limit"), defaultLogLimit),
		Offset: parseInt(q.Get("offset"), 0),
	}
	if f.Limit <= 0 {
		f.Limit = defaultLogLimit
	}
	if f.Limit > maxLogLimit {
		f.Limit = maxLogLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	if raw := q.Get("order_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid order_id"})
			return
		}
		f.OrderID = &id
	}

	items, err := h.logs.List(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// SentConfirmation reports the cached provider message id for an order.
func (h *Handler) SentConfirmation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid order id"})
		return
	}

	rec, ok, err := h.sent.GetSent(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no cached confirmation"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
