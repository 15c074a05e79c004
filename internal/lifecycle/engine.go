package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/notify"
	"github.com/grupo-shop/orderflow/internal/orders"
	"github.com/grupo-shop/orderflow/internal/payment"
)

// Failure reasons that are not engine error codes.
const ReasonClientReported = "client_reported"

// Config holds the business constants of the order flow.
type Config struct {
	Currency      string
	ShippingCost  float64
	OrderExpiry   time.Duration
	NotifyTimeout time.Duration
}

// Deps are the process-scoped collaborators, built once at startup.
// Notifier and Metrics are optional.
type Deps struct {
	Orders     OrderStore
	Products   ProductLookup
	Gateway    payment.Gateway
	Signatures SignatureVerifier
	Notifier   notify.Notifier
	Metrics    Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// Engine owns every change to an order's status and payment_status.
type Engine struct {
	orders     OrderStore
	products   ProductLookup
	gateway    payment.Gateway
	signatures SignatureVerifier
	notifier   notify.Notifier
	metrics    Metrics
	logger     *zap.Logger
	now        func() time.Time
	cfg        Config

	wg sync.WaitGroup
}

func NewEngine(d Deps, cfg Config) *Engine {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.OrderExpiry <= 0 {
		cfg.OrderExpiry = 30 * time.Minute
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{
		orders:     d.Orders,
		products:   d.Products,
		gateway:    d.Gateway,
		signatures: d.Signatures,
		notifier:   d.Notifier,
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        d.Now,
		cfg:        cfg,
	}
}

type CreateOrderInput struct {
	ProductID  string
	Tier       string
	Quantity   int
	Variations []orders.Variation
	Customer   orders.Customer
}

type CreateOrderResult struct {
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"keyId"`
}

// CreateOrder prices the order, persists it as payment_pending and opens a
// gateway order for the exact minor-unit amount. If the gateway call fails
// the order stays payment_pending without a gateway id.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.Quantity <= 0 || orders.TotalQuantity(in.Variations) != in.Quantity {
		return nil, InvalidArgument("Validation failed", "sum of variation quantities must equal quantity")
	}

	product, err := e.products.Get(ctx, in.ProductID)
	if err != nil {
		return nil, internal("Failed to create payment order", err)
	}
	if product == nil {
		return nil, newError(CodeNotFound, "Product not found")
	}
	if !product.InStock {
		return nil, newError(CodeConflict, "Product is currently out of stock")
	}
	tier, ok := product.Tier(in.Tier)
	if !ok {
		return nil, newError(CodeInvalidArgument, "Invalid tier: %s", in.Tier)
	}

	total, minor := Quote(tier.UnitPrice, in.Quantity, e.cfg.ShippingCost)
	o := &orders.Order{
		ProductID:     product.ID,
		ProductName:   product.Name,
		ProductImage:  product.Image,
		Variations:    in.Variations,
		Quantity:      in.Quantity,
		Tier:          tier.Label,
		UnitPrice:     tier.UnitPrice,
		TotalAmount:   total,
		AmountMinor:   minor,
		Currency:      e.cfg.Currency,
		Customer:      normalizeCustomer(in.Customer),
		Status:        orders.StatusPaymentPending,
		PaymentStatus: orders.PaymentPending,
	}
	if err := e.orders.Create(ctx, o); err != nil {
		return nil, internal("Failed to create payment order", err)
	}
	log := e.logger.With(zap.String("order_id", o.ID), zap.String("order_number", o.OrderNumber))

	intent, err := e.gateway.CreateIntent(ctx, payment.IntentRequest{
		AmountMinor: minor,
		Currency:    e.cfg.Currency,
		Receipt:     o.OrderNumber,
		Notes: map[string]string{
			"grupo_order_id": o.ID,
			"product_name":   product.Name,
		},
	})
	if err != nil {
		log.Error("gateway order creation failed; order left payment_pending", zap.Error(err))
		return nil, internal("Failed to create payment order", err)
	}

	if _, err := e.orders.Update(ctx, o.ID, orders.Update{GatewayOrderID: intent.ID}); err != nil {
		log.Error("store gateway order id", zap.String("gateway_order_id", intent.ID), zap.Error(err))
		return nil, internal("Failed to create payment order", err)
	}

	log.Info("order created", zap.Int64("amount", minor), zap.String("gateway_order_id", intent.ID))
	e.count("OrdersCreated", 1, nil)

	return &CreateOrderResult{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		GatewayOrderID: intent.ID,
		Amount:         minor,
		Currency:       e.cfg.Currency,
		KeyID:          e.gateway.KeyID(),
	}, nil
}

type VerifyInput struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type VerifyResult struct {
	Order       *orders.Order
	AlreadyPaid bool
}

// VerifyPayment reconciles a checkout result against the stored order and
// the gateway's own record. Checks run in a fixed order and stop at the
// first failure; risk rejections lock the order out of the payable path.
func (e *Engine) VerifyPayment(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	if in.OrderID == "" || in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.Signature == "" {
		return nil, newError(CodeInvalidArgument, "Missing required payment verification fields")
	}

	o, err := e.orders.Get(ctx, in.OrderID)
	if err != nil {
		return nil, internal("Payment verification failed", err)
	}
	if o == nil {
		return nil, newError(CodeNotFound, "Order not found")
	}
	if o.PaymentStatus == orders.PaymentPaid {
		return &VerifyResult{Order: o, AlreadyPaid: true}, nil
	}

	if e.isExpired(o) {
		return nil, e.expire(ctx, o)
	}
	if o.PaymentLocked || o.Status == orders.StatusCancelled {
		return nil, newError(CodeConflict, "Order is no longer payable")
	}
	if o.GatewayOrderID != in.GatewayOrderID {
		return nil, newError(CodeInvalidArgument, "Gateway order ID mismatch")
	}

	valid, err := e.signatures.Verify(in.GatewayOrderID, in.GatewayPaymentID, in.Signature)
	if err != nil {
		return nil, internal("Payment verification failed", err)
	}
	if !valid {
		return nil, e.reject(ctx, o, "", newError(CodeSignatureInvalid,
			"Invalid payment signature, possible tampering detected"))
	}

	p, err := e.gateway.FetchPayment(ctx, in.GatewayPaymentID)
	if err != nil {
		return nil, internal("Payment verification failed", err)
	}
	if p.Status != payment.StatusCaptured {
		return nil, e.reject(ctx, o, in.GatewayPaymentID, newError(CodePaymentNotCaptured,
			"Payment not captured, status is %q", p.Status))
	}
	if p.AmountMinor != o.AmountMinor {
		return nil, e.reject(ctx, o, in.GatewayPaymentID, newError(CodeAmountMismatch,
			"Amount mismatch: expected %d, got %d", o.AmountMinor, p.AmountMinor))
	}
	expectedCurrency := o.Currency
	if expectedCurrency == "" {
		expectedCurrency = e.cfg.Currency
	}
	if p.Currency != expectedCurrency {
		return nil, e.reject(ctx, o, in.GatewayPaymentID, newError(CodeCurrencyMismatch,
			"Currency mismatch: expected %s, got %s", expectedCurrency, p.Currency))
	}

	updated, err := e.orders.Update(ctx, o.ID, orders.Update{
		Status:           orders.StatusConfirmed,
		PaymentStatus:    orders.PaymentPaid,
		GatewayPaymentID: in.GatewayPaymentID,
		GatewaySignature: in.Signature,
		PaymentMethod:    p.Method,
		Guard:            orders.GuardPayable,
	})
	if errors.Is(err, orders.ErrConditionFailed) {
		// lost a race: a concurrent verification paid it, or a sweep locked it
		current, gerr := e.orders.Get(ctx, o.ID)
		if gerr == nil && current != nil && current.PaymentStatus == orders.PaymentPaid {
			return &VerifyResult{Order: current, AlreadyPaid: true}, nil
		}
		return nil, newError(CodeConflict, "Order is no longer payable")
	}
	if err != nil {
		return nil, internal("Payment verification failed", err)
	}

	e.logger.Info("payment verified",
		zap.String("order_id", updated.ID),
		zap.String("order_number", updated.OrderNumber),
		zap.String("gateway_payment_id", in.GatewayPaymentID))
	e.count("PaymentVerified", 1, nil)
	e.notify(notify.KindConfirmed, *updated)

	return &VerifyResult{Order: updated}, nil
}

func (e *Engine) isExpired(o *orders.Order) bool {
	return e.now().Sub(o.CreatedAt) > e.cfg.OrderExpiry
}

// expire cancels an unpaid order past its window and returns the Expired error.
func (e *Engine) expire(ctx context.Context, o *orders.Order) error {
	_, err := e.orders.Update(ctx, o.ID, orders.Update{
		Status:        orders.StatusCancelled,
		PaymentStatus: orders.PaymentFailed,
		FailureReason: string(CodeExpired),
		Lock:          true,
		Guard:         orders.GuardNotPaid,
	})
	if err != nil && !errors.Is(err, orders.ErrConditionFailed) {
		return internal("Payment verification failed", err)
	}
	e.count("PaymentRejected", 1, map[string]string{"Reason": string(CodeExpired)})
	return newError(CodeExpired, "Order has expired, please create a new order")
}

// reject moves o to payment_failed with rejection.Code as the reason and
// locks it. A paid order is left alone.
func (e *Engine) reject(ctx context.Context, o *orders.Order, gatewayPaymentID string, rejection *Error) error {
	_, err := e.orders.Update(ctx, o.ID, orders.Update{
		Status:           orders.StatusPaymentFailed,
		PaymentStatus:    orders.PaymentFailed,
		GatewayPaymentID: gatewayPaymentID,
		FailureReason:    string(rejection.Code),
		Lock:             true,
		Guard:            orders.GuardNotPaid,
	})
	if err != nil && !errors.Is(err, orders.ErrConditionFailed) {
		return internal("Payment verification failed", err)
	}

	e.logger.Warn("payment rejected",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("reason", string(rejection.Code)))
	e.count("PaymentRejected", 1, map[string]string{"Reason": string(rejection.Code)})
	return rejection
}

type FailureResult struct {
	Message     string
	AlreadyPaid bool
}

// ReportPaymentFailure records a client-side failure or dismissal. Paid
// orders are never downgraded.
func (e *Engine) ReportPaymentFailure(ctx context.Context, orderID string) (*FailureResult, error) {
	if orderID == "" {
		return nil, newError(CodeInvalidArgument, "orderId is required")
	}
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, internal("Failed to update payment status", err)
	}
	if o == nil {
		return nil, newError(CodeNotFound, "Order not found")
	}
	alreadyPaid := &FailureResult{Message: "Order is already paid, cannot mark as failed", AlreadyPaid: true}
	if o.PaymentStatus == orders.PaymentPaid {
		return alreadyPaid, nil
	}

	_, err = e.orders.Update(ctx, orderID, orders.Update{
		Status:        orders.StatusPaymentFailed,
		PaymentStatus: orders.PaymentFailed,
		FailureReason: ReasonClientReported,
		Guard:         orders.GuardNotPaid,
	})
	if errors.Is(err, orders.ErrConditionFailed) {
		return alreadyPaid, nil
	}
	if err != nil {
		return nil, internal("Failed to update payment status", err)
	}
	return &FailureResult{Message: "Order marked as payment failed"}, nil
}

// UpdateStatus sets any status from the fixed set; no ordering is enforced.
// Cancelling also locks the order against later payment.
func (e *Engine) UpdateStatus(ctx context.Context, orderID string, status orders.Status) (*orders.Order, error) {
	if !status.Valid() {
		return nil, newError(CodeInvalidArgument, "status must be one of: %s", statusList())
	}
	updated, err := e.orders.Update(ctx, orderID, orders.Update{
		Status: status,
		Lock:   status == orders.StatusCancelled,
	})
	if errors.Is(err, orders.ErrNotFound) {
		return nil, newError(CodeNotFound, "Order not found")
	}
	if err != nil {
		return nil, internal("Failed to update order status", err)
	}

	e.logger.Info("order status updated",
		zap.String("order_id", updated.ID),
		zap.String("status", string(status)))
	if kind, ok := notify.KindForStatus(status); ok {
		e.notify(kind, *updated)
	}
	return updated, nil
}

// Get loads an order by id, falling back to its order number.
func (e *Engine) Get(ctx context.Context, idOrNumber string) (*orders.Order, error) {
	o, err := e.orders.Get(ctx, idOrNumber)
	if err != nil {
		return nil, internal("Failed to fetch order", err)
	}
	if o == nil {
		o, err = e.orders.GetByNumber(ctx, idOrNumber)
		if err != nil {
			return nil, internal("Failed to fetch order", err)
		}
	}
	if o == nil {
		return nil, newError(CodeNotFound, "Order not found")
	}
	return o, nil
}

// Track loads an order by its public order number.
func (e *Engine) Track(ctx context.Context, orderNumber string) (*orders.Order, error) {
	o, err := e.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, internal("Failed to fetch order", err)
	}
	if o == nil {
		return nil, newError(CodeNotFound, "Order not found")
	}
	return o, nil
}

func (e *Engine) List(ctx context.Context, q orders.ListQuery) (*orders.Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, newError(CodeInvalidArgument, "status must be one of: %s", statusList())
	}
	page, err := e.orders.List(ctx, q)
	if err != nil {
		return nil, internal("Failed to fetch orders", err)
	}
	return page, nil
}

// Wait blocks until background notifications and metrics have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) notify(kind notify.Kind, o orders.Order) {
	if e.notifier == nil {
		return
	}
	e.background(func(ctx context.Context) {
		if err := e.notifier.Notify(ctx, kind, o); err != nil {
			e.logger.Warn("notification failed",
				zap.String("kind", string(kind)),
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
	})
}

func (e *Engine) count(name string, value float64, dims map[string]string) {
	if e.metrics == nil {
		return
	}
	e.background(func(ctx context.Context) {
		if err := e.metrics.Count(ctx, name, value, dims); err != nil {
			e.logger.Warn("metric publish failed", zap.String("metric", name), zap.Error(err))
		}
	})
}

// background runs fn detached from the request context.
func (e *Engine) background(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("background task panicked", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.NotifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func normalizeCustomer(c orders.Customer) orders.Customer {
	return orders.Customer{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:   strings.TrimSpace(c.Phone),
		Company: strings.TrimSpace(c.Company),
		Address: strings.TrimSpace(c.Address),
		City:    strings.TrimSpace(c.City),
		State:   strings.TrimSpace(c.State),
		Pincode: strings.TrimSpace(c.Pincode),
	}
}

func statusList() string {
	names := make([]string, len(orders.Statuses))
	for i, s := range orders.Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
