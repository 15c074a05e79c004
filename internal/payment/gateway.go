package payment

import (
	"context"
	"errors"
)

// StatusCaptured is the only gateway payment status that settles an order.
const StatusCaptured = "captured"

// ErrNotConfigured is returned when the gateway has no credentials.
var ErrNotConfigured = errors.New("payment gateway credentials are not configured")

// IntentRequest describes a remote order (payment intent) to create.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Intent is the gateway-side order created for one of our orders.
type Intent struct {
	ID          string
	AmountMinor int64
	Currency    string
}

// Payment is the gateway's authoritative view of a payment.
type Payment struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string
	Method      string
}

// Gateway is the payment provider boundary.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	// KeyID is the public key handed to the checkout widget.
	KeyID() string
}
