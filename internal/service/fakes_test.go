package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/order-confirm/internal/cache"
	"github.com/LeventeLantos/order-confirm/internal/client"
	"github.com/LeventeLantos/order-confirm/internal/model"
	"github.com/LeventeLantos/order-confirm/internal/repo"
	"github.com/LeventeLantos/order-confirm/internal/template"
)

type markCall struct {
	ID        uuid.UUID
	SentAt    time.Time
	PhoneE164 string
	FirstName string
}

type transitionCall struct {
	ID uuid.UUID
	To model.OrderStatus
}

type fakeOrders struct {
	mu sync.Mutex

	due       []model.Order
	listErr   error
	cutoff    time.Time
	claimedAt time.Time
	lease     time.Duration
	limit     int

	// claimed stands in for the claim column: a claimed order is not handed
	// to another sweep until it is released.
	claimed    map[uuid.UUID]bool
	released   []uuid.UUID
	releaseErr error

	marks   []markCall
	markErr error

	flagged map[uuid.UUID]string

	pendingByPhone map[string]*model.Order
	findErr        error

	transitions   []transitionCall
	transitionErr error
	notPending    map[uuid.UUID]bool
}

var _ repo.OrderRepository = (*fakeOrders)(nil)

func (f *fakeOrders) ClaimDueForConfirmation(ctx context.Context, createdBefore, claimedAt time.Time, lease time.Duration, limit int) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = createdBefore
	f.claimedAt = claimedAt
	f.lease = lease
	f.limit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.claimed == nil {
		f.claimed = map[uuid.UUID]bool{}
	}
	var out []model.Order
	for _, o := range f.due {
		if f.claimed[o.ID] {
			continue
		}
		f.claimed[o.ID] = true
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrders) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
	if f.releaseErr != nil {
		return f.releaseErr
	}
	delete(f.claimed, id)
	return nil
}

func (f *fakeOrders) releasedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.released...)
}

func (f *fakeOrders) markCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.marks)
}

func (f *fakeOrders) MarkConfirmSent(ctx context.Context, id uuid.UUID, sentAt time.Time, phoneE164, firstName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}
	for _, m := range f.marks {
		if m.ID == id {
			return false, nil
		}
	}
	f.marks = append(f.marks, markCall{ID: id, SentAt: sentAt, PhoneE164: phoneE164, FirstName: firstName})
	return true, nil
}

func (f *fakeOrders) FlagForReview(ctx context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flagged == nil {
		f.flagged = map[uuid.UUID]string{}
	}
	f.flagged[id] = reason
	return nil
}

func (f *fakeOrders) FindLatestPendingByPhone(ctx context.Context, phoneE164 string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.pendingByPhone[phoneE164], nil
}

func (f *fakeOrders) TransitionFromPending(ctx context.Context, id uuid.UUID, to model.OrderStatus, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionErr != nil {
		return false, f.transitionErr
	}
	if f.notPending[id] {
		return false, nil
	}
	if f.notPending == nil {
		f.notPending = map[uuid.UUID]bool{}
	}
	f.notPending[id] = true
	f.transitions = append(f.transitions, transitionCall{ID: id, To: to})
	return true, nil
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []model.WhatsAppLog
	err     error
}

var _ repo.WhatsAppLogRepository = (*fakeLogs)(nil)

func (f *fakeLogs) Insert(ctx context.Context, e *model.WhatsAppLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	e.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeLogs) List(ctx context.Context, _ repo.LogFilter) ([]model.WhatsAppLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.WhatsAppLog(nil), f.entries...), nil
}

func (f *fakeLogs) all() []model.WhatsAppLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.WhatsAppLog(nil), f.entries...)
}

// fakeClient answers with the next scripted response; the last one repeats.
// When gate is set, each Send signals entered and then waits for gate to
// close.
type fakeClient struct {
	mu         sync.Mutex
	configured bool
	results    []fakeResult
	sent       []template.Payload

	entered chan struct{}
	gate    chan struct{}
}

type fakeResult struct {
	res client.SendResult
	err error
}

func okResult(id string) fakeResult {
	return fakeResult{res: client.SendResult{StatusCode: 200, Body: `{"messages":[{"id":"` + id + `"}]}`, MessageID: id}}
}

func providerFailure(status int) fakeResult {
	body := `{"error":{"message":"rejected"}}`
	return fakeResult{
		res: client.SendResult{StatusCode: status, Body: body},
		err: &client.ProviderError{StatusCode: status, Body: body},
	}
}

func (f *fakeClient) Configured() bool { return f.configured }

func (f *fakeClient) Send(ctx context.Context, p template.Payload) (client.SendResult, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.configured {
		return client.SendResult{}, client.ErrNotConfigured
	}
	f.sent = append(f.sent, p)
	if len(f.results) == 0 {
		return client.SendResult{}, errors.New("no scripted result")
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.res, r.err
}

func (f *fakeClient) payloads() []template.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]template.Payload(nil), f.sent...)
}

type fakeCache struct {
	mu     sync.Mutex
	stored map[uuid.UUID]cache.SentRecord
	err    error
}

var _ cache.SentCache = (*fakeCache)(nil)

func (f *fakeCache) StoreSent(ctx context.Context, orderID uuid.UUID, waMessageID string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.stored == nil {
		f.stored = map[uuid.UUID]cache.SentRecord{}
	}
	f.stored[orderID] = cache.SentRecord{WAMessageID: waMessageID, SentAt: sentAt}
	return nil
}

func (f *fakeCache) GetSent(ctx context.Context, orderID uuid.UUID) (cache.SentRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.stored[orderID]
	return r, ok, nil
}
