package orders

import (
	"errors"
	"time"
)

// Status is the fulfilment lifecycle of an order.
type Status string

// Order statuses
const (
	StatusPending        Status = "pending"
	StatusPaymentPending Status = "payment_pending"
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusPaymentFailed  Status = "payment_failed"
)

// Statuses lists every accepted status in display order.
var Statuses = []Status{
	StatusPending, StatusPaymentPending, StatusConfirmed, StatusProcessing,
	StatusShipped, StatusDelivered, StatusCancelled, StatusPaymentFailed,
}

// Valid reports whether s is one of Statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// PaymentStatus tracks the money side of an order. PaymentPaid is terminal.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

var (
	// ErrConditionFailed is returned when an Update guard does not hold.
	ErrConditionFailed = errors.New("conditional check failed")
	// ErrNotFound is returned by Update when the order does not exist.
	ErrNotFound = errors.New("order not found")
)

// SizeQuantity is one size line inside a colour variation.
type SizeQuantity struct {
	Size     string `json:"size" dynamodbav:"size"`
	Quantity int    `json:"quantity" dynamodbav:"quantity"`
}

// Variation groups size lines under one colour.
type Variation struct {
	Color string         `json:"color" dynamodbav:"color"`
	Sizes []SizeQuantity `json:"sizes" dynamodbav:"sizes"`
}

// TotalQuantity sums every size line across variations.
func TotalQuantity(vs []Variation) int {
	total := 0
	for _, v := range vs {
		for _, s := range v.Sizes {
			total += s.Quantity
		}
	}
	return total
}

// Customer is the shipping/contact snapshot taken at order time.
type Customer struct {
	Name    string `json:"customer_name" dynamodbav:"customer_name"`
	Email   string `json:"customer_email" dynamodbav:"customer_email"`
	Phone   string `json:"customer_phone" dynamodbav:"customer_phone"`
	Company string `json:"customer_company,omitempty" dynamodbav:"customer_company,omitempty"`
	Address string `json:"address" dynamodbav:"address"`
	City    string `json:"city" dynamodbav:"city"`
	State   string `json:"state" dynamodbav:"state"`
	Pincode string `json:"pincode" dynamodbav:"pincode"`
}

// Order is the persisted order record.
type Order struct {
	ID           string      `json:"id" dynamodbav:"order_id"` // PK
	OrderNumber  string      `json:"order_number" dynamodbav:"order_number"`
	ProductID    string      `json:"product_id" dynamodbav:"product_id"`
	ProductName  string      `json:"product_name" dynamodbav:"product_name"`
	ProductImage string      `json:"product_image,omitempty" dynamodbav:"product_image,omitempty"`
	Variations   []Variation `json:"variations" dynamodbav:"variations"`
	Quantity     int         `json:"quantity" dynamodbav:"quantity"`
	Tier         string      `json:"tier" dynamodbav:"tier"`
	UnitPrice    float64     `json:"unit_price" dynamodbav:"unit_price"`
	TotalAmount  float64     `json:"total_amount" dynamodbav:"total_amount"`
	AmountMinor  int64       `json:"amount_in_minor_units" dynamodbav:"amount_in_minor_units"`
	Currency     string      `json:"currency" dynamodbav:"currency"`

	Customer

	Status        Status        `json:"status" dynamodbav:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" dynamodbav:"payment_status"`
	// PaymentLocked is set once the order has left the payable path (risk
	// rejection, expiry or cancellation) and can never be paid afterwards.
	PaymentLocked bool   `json:"payment_locked" dynamodbav:"payment_locked"`
	FailureReason string `json:"failure_reason,omitempty" dynamodbav:"failure_reason,omitempty"`

	GatewayOrderID   string `json:"gateway_order_id,omitempty" dynamodbav:"gateway_order_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty" dynamodbav:"gateway_payment_id,omitempty"`
	GatewaySignature string `json:"gateway_signature,omitempty" dynamodbav:"gateway_signature,omitempty"`
	PaymentMethod    string `json:"payment_method,omitempty" dynamodbav:"payment_method,omitempty"`

	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at,unixtime"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at,unixtime"`
}

// Guard is the precondition an Update must satisfy against the stored row.
type Guard int

const (
	// GuardNone applies the update unconditionally (last write wins).
	GuardNone Guard = iota
	// GuardNotPaid requires payment_status <> paid.
	GuardNotPaid
	// GuardPayable requires payment_status <> paid and payment_locked = false.
	GuardPayable
)

// Update is a partial write. Zero-valued fields are left untouched.
type Update struct {
	Status           Status
	PaymentStatus    PaymentStatus
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
	PaymentMethod    string
	FailureReason    string
	Lock             bool
	Guard            Guard
}

// ListQuery selects one page of orders, newest first.
type ListQuery struct {
	Status Status
	Page   int
	Limit  int
}

// MaxPage bounds page numbers so offsets cannot overflow.
const MaxPage = 1 << 20

// Normalize applies the default page (1, max MaxPage) and limit (20, max 100).
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return q
}

// Offset is the index of the first order on the normalized page.
func (q ListQuery) Offset() int {
	q = q.Normalize()
	return (q.Page - 1) * q.Limit
}

// Page is one page of a listing.
type Page struct {
	Orders     []Order `json:"orders"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
}

// NewPage builds a Page from the full result set.
func NewPage(all []Order, q ListQuery) *Page {
	q = q.Normalize()
	total := len(all)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return &Page{
		Orders:     append([]Order{}, all[start:end]...),
		Total:      total,
		Page:       q.Page,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}
}
