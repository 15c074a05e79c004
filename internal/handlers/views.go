package handlers

import (
	"time"

	"github.com/grupo-shop/orderflow/internal/orders"
)

// orderSummary is what the storefront sees after verification.
type orderSummary struct {
	ID            string               `json:"id"`
	OrderNumber   string               `json:"orderNumber"`
	ProductName   string               `json:"productName"`
	Quantity      int                  `json:"quantity"`
	Tier          string               `json:"tier"`
	TotalAmount   float64              `json:"totalAmount"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"paymentStatus"`
	CreatedAt     time.Time            `json:"createdAt"`
}

func summaryOf(o *orders.Order) orderSummary {
	return orderSummary{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		ProductName:   o.ProductName,
		Quantity:      o.Quantity,
		Tier:          o.Tier,
		TotalAmount:   o.TotalAmount,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		CreatedAt:     o.CreatedAt,
	}
}

// trackingView is the public, contact-free view behind the order number.
type trackingView struct {
	OrderNumber  string             `json:"orderNumber"`
	ProductName  string             `json:"productName"`
	ProductImage string             `json:"productImage,omitempty"`
	Variations   []orders.Variation `json:"variations"`
	Quantity     int                `json:"quantity"`
	Tier         string             `json:"tier"`
	UnitPrice    float64            `json:"unitPrice"`
	TotalAmount  float64            `json:"totalAmount"`
	Status       orders.Status      `json:"status"`
	City         string             `json:"city"`
	State        string             `json:"state"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

func trackingOf(o *orders.Order) trackingView {
	return trackingView{
		OrderNumber:  o.OrderNumber,
		ProductName:  o.ProductName,
		ProductImage: o.ProductImage,
		Variations:   o.Variations,
		Quantity:     o.Quantity,
		Tier:         o.Tier,
		UnitPrice:    o.UnitPrice,
		TotalAmount:  o.TotalAmount,
		Status:       o.Status,
		City:         o.City,
		State:        o.State,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}
