package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grupo-shop/orderflow/internal/catalog"
	"github.com/grupo-shop/orderflow/internal/notify"
	"github.com/grupo-shop/orderflow/internal/orders"
	"github.com/grupo-shop/orderflow/internal/payment"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memStore applies the same guard semantics as the real stores under one lock.
type memStore struct {
	mu         sync.Mutex
	now        func() time.Time
	byID       map[string]orders.Order
	seq        int
	failUpdate map[string]error
	paidWrites int
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{now: now, byID: map[string]orders.Order{}, failUpdate: map[string]error{}}
}

func (m *memStore) Create(_ context.Context, o *orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	o.ID = fmt.Sprintf("ord-%d", m.seq)
	o.OrderNumber = fmt.Sprintf("GRP-20261018-%06d", m.seq)
	o.CreatedAt = m.now()
	o.UpdatedAt = o.CreatedAt
	m.byID[o.ID] = *o
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *memStore) GetByNumber(_ context.Context, number string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.OrderNumber == number {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *memStore) Update(_ context.Context, id string, u orders.Update) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpdate[id]; err != nil {
		return nil, err
	}
	o, ok := m.byID[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	switch u.Guard {
	case orders.GuardNotPaid:
		if o.PaymentStatus == orders.PaymentPaid {
			return nil, orders.ErrConditionFailed
		}
	case orders.GuardPayable:
		if o.PaymentStatus == orders.PaymentPaid || o.PaymentLocked {
			return nil, orders.ErrConditionFailed
		}
	}
	if u.Status != "" {
		o.Status = u.Status
	}
	if u.PaymentStatus != "" {
		o.PaymentStatus = u.PaymentStatus
		if u.PaymentStatus == orders.PaymentPaid {
			m.paidWrites++
		}
	}
	if u.GatewayOrderID != "" {
		o.GatewayOrderID = u.GatewayOrderID
	}
	if u.GatewayPaymentID != "" {
		o.GatewayPaymentID = u.GatewayPaymentID
	}
	if u.GatewaySignature != "" {
		o.GatewaySignature = u.GatewaySignature
	}
	if u.PaymentMethod != "" {
		o.PaymentMethod = u.PaymentMethod
	}
	if u.FailureReason != "" {
		o.FailureReason = u.FailureReason
	}
	if u.Lock {
		o.PaymentLocked = true
	}
	o.UpdatedAt = m.now()
	m.byID[id] = o
	return &o, nil
}

func (m *memStore) List(_ context.Context, q orders.ListQuery) (*orders.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []orders.Order
	for _, o := range m.byID {
		if q.Status == "" || o.Status == q.Status {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return orders.NewPage(all, q), nil
}

func (m *memStore) ListExpired(_ context.Context, cutoff time.Time) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.byID {
		if o.Status == orders.StatusPaymentPending && o.PaymentStatus == orders.PaymentPending && o.CreatedAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) order(id string) orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

type fakeCatalog map[string]catalog.Product

func (f fakeCatalog) Get(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	intents   []payment.IntentRequest
	createErr error
	payments  map[string]payment.Payment
	fetchErr  error
	nextID    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]payment.Payment{}}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.intents = append(g.intents, req)
	g.nextID++
	return &payment.Intent{ID: fmt.Sprintf("order_gw%d", g.nextID), AmountMinor: req.AmountMinor, Currency: req.Currency}, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, id string) (*payment.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, errors.New("payment not found")
	}
	return &p, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_public" }

func (g *fakeGateway) setPayment(p payment.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
}

type sent struct {
	kind  notify.Kind
	order orders.Order
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, kind notify.Kind, o orders.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{kind, o})
	return r.err
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.kind
	}
	return out
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (r *recordingMetrics) Count(_ context.Context, name string, v float64, dims map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]float64{}
	}
	key := name
	if reason := dims["Reason"]; reason != "" {
		key += "/" + reason
	}
	r.counts[key] += v
	return nil
}

func (r *recordingMetrics) get(key string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}
