package payment

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// orderAPI and paymentAPI are the razorpay-go resources this client uses.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay implements Gateway over the official SDK. The SDK takes no
// context, so cancellation is only checked before each call.
type Razorpay struct {
	keyID    string
	orders   orderAPI
	payments paymentAPI
}

func NewRazorpay(keyID, keySecret string) *Razorpay {
	client := razorpay.NewClient(keyID, keySecret)
	return &Razorpay{
		keyID:    keyID,
		orders:   client.Order,
		payments: client.Payment,
	}
}

func (r *Razorpay) KeyID() string { return r.keyID }

func (r *Razorpay) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if r.keyID == "" {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	body, err := r.orders.Create(map[string]interface{}{
		"amount":          req.AmountMinor,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"partial_payment": false,
		"notes":           notes,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay create order: response has no id")
	}
	return &Intent{
		ID:          id,
		AmountMinor: toInt64(body["amount"]),
		Currency:    stringOf(body["currency"]),
	}, nil
}

func (r *Razorpay) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if r.keyID == "" {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := r.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay fetch payment: %w", err)
	}
	return &Payment{
		ID:          stringOf(body["id"]),
		Status:      stringOf(body["status"]),
		AmountMinor: toInt64(body["amount"]),
		Currency:    stringOf(body["currency"]),
		Method:      stringOf(body["method"]),
	}, nil
}

// toInt64 reads a JSON number decoded as float64 (or already integral).
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}
