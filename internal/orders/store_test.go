package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

const testTable = "orders"

func newTestStore(m *mockDynamo, now time.Time) *Store {
	s := NewStore(m, testTable)
	s.nowFunc = func() time.Time { return now }
	return s
}

func sampleOrder() *Order {
	return &Order{
		ProductID:   "prod-1",
		ProductName: "Classic Tee",
		Variations: []Variation{
			{Color: "Black", Sizes: []SizeQuantity{{Size: "M", Quantity: 60}, {Size: "L", Quantity: 40}}},
		},
		Quantity:    100,
		Tier:        "100-249",
		UnitPrice:   150,
		TotalAmount: 15299,
		AmountMinor: 1529900,
		Currency:    "INR",
		Customer: Customer{
			Name: "Asha", Email: "asha@example.com", Phone: "+91 98765 43210",
			Address: "1 MG Road", City: "Bengaluru", State: "KA", Pincode: "560001",
		},
		Status: StatusPaymentPending,
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	s := newTestStore(newMockDynamo(), now)

	o := sampleOrder()
	if err := s.Create(ctx, o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if o.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if !strings.HasPrefix(o.OrderNumber, "GRP-20261018-") || len(o.OrderNumber) != len("GRP-20261018-XXXXXX") {
		t.Fatalf("unexpected order number %q", o.OrderNumber)
	}

	got, err := s.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatalf("expected order, got nil")
	}
	if got.PaymentStatus != PaymentPending || got.PaymentLocked {
		t.Fatalf("unexpected payment state: %+v", got)
	}
	if got.Customer.Pincode != "560001" || len(got.Variations) != 1 || got.Variations[0].Sizes[1].Quantity != 40 {
		t.Fatalf("snapshot not persisted: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, now)
	}

	byNumber, err := s.GetByNumber(ctx, o.OrderNumber)
	if err != nil {
		t.Fatalf("GetByNumber failed: %v", err)
	}
	if byNumber == nil || byNumber.ID != o.ID {
		t.Fatalf("GetByNumber returned %+v", byNumber)
	}
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMockDynamo(), time.Now())

	o, err := s.Get(ctx, "nope")
	if err != nil || o != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", o, err)
	}
	o, err = s.GetByNumber(ctx, "GRP-20260101-AAAAAA")
	if err != nil || o != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", o, err)
	}
}

func TestGetDoesNotReturnNumberGuard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMockDynamo(), time.Now())
	o := sampleOrder()
	if err := s.Create(ctx, o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := s.Get(ctx, numberPrefix+o.OrderNumber)
	if err != nil || got != nil {
		t.Fatalf("guard item leaked through Get: (%v, %v)", got, err)
	}
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMockDynamo(), time.Now())
	seq := []string{"GRP-A", "GRP-A", "GRP-A", "GRP-B"}
	i := 0
	s.newNumber = func(time.Time) string {
		n := seq[i]
		i++
		return n
	}

	first := sampleOrder()
	if err := s.Create(ctx, first); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	second := sampleOrder()
	if err := s.Create(ctx, second); err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if second.OrderNumber != "GRP-B" {
		t.Fatalf("expected retry to land on GRP-B, got %q", second.OrderNumber)
	}
	if first.ID == second.ID {
		t.Fatalf("ids must differ")
	}
}

func TestCreateGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMockDynamo(), time.Now())
	s.newNumber = func(time.Time) string { return "GRP-SAME" }

	if err := s.Create(ctx, sampleOrder()); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	err := s.Create(ctx, sampleOrder())
	if !errors.Is(err, ErrNumberExhausted) {
		t.Fatalf("expected ErrNumberExhausted, got %v", err)
	}
}

func TestUpdateGuards(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMockDynamo(), time.Now())
	o := sampleOrder()
	if err := s.Create(ctx, o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// lock via an expiry-style failure
	locked, err := s.Update(ctx, o.ID, Update{
		Status: StatusCancelled, PaymentStatus: PaymentFailed,
		FailureReason: "order_expired", Lock: true, Guard: GuardNotPaid,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !locked.PaymentLocked || locked.Status != StatusCancelled || locked.FailureReason != "order_expired" {
		t.Fatalf("unexpected state after lock: %+v", locked)
	}

	_, err = s.Update(ctx, o.ID, Update{Status: StatusConfirmed, PaymentStatus: PaymentPaid, Guard: GuardPayable})
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed for locked order, got %v", err)
	}

	got, _ := s.Get(ctx, o.ID)
	if got.PaymentStatus == PaymentPaid {
		t.Fatalf("locked order must not become paid")
	}
}

func TestUpdateNotPaidGuardRejectsPaidOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMockDynamo(), time.Now())
	o := sampleOrder()
	if err := s.Create(ctx, o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	paid, err := s.Update(ctx, o.ID, Update{
		Status: StatusConfirmed, PaymentStatus: PaymentPaid,
		GatewayOrderID: "order_X", GatewayPaymentID: "pay_Y", GatewaySignature: "sig", PaymentMethod: "upi",
		Guard: GuardPayable,
	})
	if err != nil {
		t.Fatalf("paid Update failed: %v", err)
	}
	if paid.GatewayPaymentID != "pay_Y" || paid.PaymentMethod != "upi" {
		t.Fatalf("gateway fields not stored: %+v", paid)
	}

	_, err = s.Update(ctx, o.ID, Update{Status: StatusPaymentFailed, PaymentStatus: PaymentFailed, Guard: GuardNotPaid})
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}

	// admin transitions are unguarded
	shipped, err := s.Update(ctx, o.ID, Update{Status: StatusShipped})
	if err != nil {
		t.Fatalf("admin Update failed: %v", err)
	}
	if shipped.Status != StatusShipped || shipped.PaymentStatus != PaymentPaid {
		t.Fatalf("unexpected state: %+v", shipped)
	}
}

func TestUpdateMissingOrder(t *testing.T) {
	s := newTestStore(newMockDynamo(), time.Now())
	_, err := s.Update(context.Background(), "missing", Update{Status: StatusShipped})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := newMockDynamo()
	m.pageSize = 2 // force multi-page scans
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(m, testTable)

	for i := 0; i < 5; i++ {
		created := base.Add(time.Duration(i) * time.Hour)
		s.nowFunc = func() time.Time { return created }
		o := sampleOrder()
		if i%2 == 1 {
			o.Status = StatusShipped
		}
		if err := s.Create(ctx, o); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	page, err := s.List(ctx, ListQuery{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Total != 5 || page.TotalPages != 3 || len(page.Orders) != 2 {
		t.Fatalf("unexpected page: total=%d pages=%d len=%d", page.Total, page.TotalPages, len(page.Orders))
	}
	if !page.Orders[0].CreatedAt.Equal(base.Add(4 * time.Hour)) {
		t.Fatalf("expected newest first, got %v", page.Orders[0].CreatedAt)
	}
	if m.scanCalls < 2 {
		t.Fatalf("expected paginated scan, got %d calls", m.scanCalls)
	}

	shipped, err := s.List(ctx, ListQuery{Status: StatusShipped})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if shipped.Total != 2 || shipped.Page != 1 {
		t.Fatalf("expected 2 shipped orders, got %+v", shipped)
	}
	for _, o := range shipped.Orders {
		if o.Status != StatusShipped {
			t.Fatalf("filter leaked %s", o.Status)
		}
	}

	beyond, err := s.List(ctx, ListQuery{Page: 9, Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(beyond.Orders) != 0 || beyond.Total != 5 {
		t.Fatalf("expected empty page past the end, got %+v", beyond)
	}
}

func TestNewPageHugePageNumberIsEmpty(t *testing.T) {
	for _, page := range []int{1 << 59, int(^uint(0) >> 1), MaxPage + 1} {
		got := NewPage(make([]Order, 3), ListQuery{Page: page, Limit: 20})
		if len(got.Orders) != 0 || got.Total != 3 || got.TotalPages != 1 {
			t.Fatalf("page %d: expected empty page past the end, got %+v", page, got)
		}
		if got.Page != MaxPage {
			t.Fatalf("page %d: expected page capped to %d, got %d", page, MaxPage, got.Page)
		}
	}
	if off := (ListQuery{Page: 1 << 62, Limit: 100}).Offset(); off < 0 {
		t.Fatalf("offset overflowed: %d", off)
	}
}

func TestUpdateIgnoresNumberGuardItem(t *testing.T) {
	ctx := context.Background()
	m := newMockDynamo()
	s := newTestStore(m, time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC))
	o := sampleOrder()
	if err := s.Create(ctx, o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err := s.Update(ctx, numberPrefix+o.OrderNumber, Update{Status: StatusShipped})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for the number guard item, got %v", err)
	}
	guard := m.table(testTable)[numberPrefix+o.OrderNumber]
	if _, ok := guard["status"]; ok {
		t.Fatalf("guard item was written: %+v", guard)
	}
	got, err := s.GetByNumber(ctx, o.OrderNumber)
	if err != nil || got == nil || got.ID != o.ID {
		t.Fatalf("number lookup broken after rejected update: %+v %v", got, err)
	}
}

func TestListExpired(t *testing.T) {
	ctx := context.Background()
	m := newMockDynamo()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s := NewStore(m, testTable)

	create := func(age time.Duration, status Status) *Order {
		s.nowFunc = func() time.Time { return now.Add(-age) }
		o := sampleOrder()
		o.Status = status
		if err := s.Create(ctx, o); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		return o
	}

	stale := create(45*time.Minute, StatusPaymentPending)
	create(10*time.Minute, StatusPaymentPending)
	create(2*time.Hour, StatusConfirmed)
	paidStale := create(50*time.Minute, StatusPaymentPending)
	if _, err := s.Update(ctx, paidStale.ID, Update{PaymentStatus: PaymentPaid, Guard: GuardPayable}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	expired, err := s.ListExpired(ctx, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ListExpired failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID {
		ids := make([]string, 0, len(expired))
		for _, o := range expired {
			ids = append(ids, fmt.Sprintf("%s(%s)", o.ID, o.Status))
		}
		t.Fatalf("expected only the stale pending order, got %v", ids)
	}
}

func TestNewOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := NewOrderNumber(now)
		if !strings.HasPrefix(n, "GRP-20260102-") || len(n) != 19 {
			t.Fatalf("bad order number %q", n)
		}
		if strings.ToUpper(n) != n {
			t.Fatalf("order number must be uppercase: %q", n)
		}
		seen[n] = true
	}
	if len(seen) < 45 {
		t.Fatalf("order numbers repeat too often: %d unique of 50", len(seen))
	}
}
