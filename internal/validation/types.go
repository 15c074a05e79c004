package validation

import (
	"github.com/grupo-shop/orderflow/internal/lifecycle"
	"github.com/grupo-shop/orderflow/internal/orders"
)

// SizeQuantity is one size line of a variation.
type SizeQuantity struct {
	Size     string `json:"size" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

// Variation groups size lines under one colour.
type Variation struct {
	Color string         `json:"color" validate:"required"`
	Sizes []SizeQuantity `json:"sizes" validate:"required,min=1,dive"`
}

// Customer is the contact and shipping block of a new order.
type Customer struct {
	FullName string `json:"fullName" validate:"notblank"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"notblank"`
	Company  string `json:"company,omitempty"`
	Address  string `json:"address" validate:"notblank"`
	City     string `json:"city" validate:"notblank"`
	State    string `json:"state" validate:"notblank"`
	Pincode  string `json:"pincode" validate:"required,pincode"`
}

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	ProductID  string      `json:"productId" validate:"required"`
	Tier       string      `json:"tier" validate:"required"`
	Quantity   int         `json:"quantity" validate:"required,min=10"` // bulk minimum
	Variations []Variation `json:"variations" validate:"required,min=1,dive"`
	Customer   Customer    `json:"customer"`
}

// Input converts the request into the engine's input.
func (r CreateOrderRequest) Input() lifecycle.CreateOrderInput {
	vs := make([]orders.Variation, len(r.Variations))
	for i, v := range r.Variations {
		sizes := make([]orders.SizeQuantity, len(v.Sizes))
		for j, s := range v.Sizes {
			sizes[j] = orders.SizeQuantity{Size: s.Size, Quantity: s.Quantity}
		}
		vs[i] = orders.Variation{Color: v.Color, Sizes: sizes}
	}
	return lifecycle.CreateOrderInput{
		ProductID:  r.ProductID,
		Tier:       r.Tier,
		Quantity:   r.Quantity,
		Variations: vs,
		Customer: orders.Customer{
			Name:    r.Customer.FullName,
			Email:   r.Customer.Email,
			Phone:   r.Customer.Phone,
			Company: r.Customer.Company,
			Address: r.Customer.Address,
			City:    r.Customer.City,
			State:   r.Customer.State,
			Pincode: r.Customer.Pincode,
		},
	}
}

// VerifyPaymentRequest is the checkout callback forwarded by the storefront.
// Presence of every field is checked by the engine so that the error message
// stays the same for every client.
type VerifyPaymentRequest struct {
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

func (r VerifyPaymentRequest) Input() lifecycle.VerifyInput {
	return lifecycle.VerifyInput{
		OrderID:          r.OrderID,
		GatewayOrderID:   r.GatewayOrderID,
		GatewayPaymentID: r.GatewayPaymentID,
		Signature:        r.Signature,
	}
}

// PaymentFailedRequest reports a checkout failure or dismissal.
type PaymentFailedRequest struct {
	OrderID string `json:"orderId"`
}

// UpdateStatusRequest is the admin status change body.
type UpdateStatusRequest struct {
	Status orders.Status `json:"status"`
}
