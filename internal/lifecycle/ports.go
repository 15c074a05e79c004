package lifecycle

import (
	"context"
	"time"

	"github.com/grupo-shop/orderflow/internal/catalog"
	"github.com/grupo-shop/orderflow/internal/orders"
)

// OrderStore is implemented by orders.Store (DynamoDB) and sqlite.Store.
type OrderStore interface {
	Create(ctx context.Context, o *orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*orders.Order, error)
	Update(ctx context.Context, orderID string, u orders.Update) (*orders.Order, error)
	List(ctx context.Context, q orders.ListQuery) (*orders.Page, error)
	ListExpired(ctx context.Context, cutoff time.Time) ([]orders.Order, error)
}

// ProductLookup resolves the product an order is placed against.
type ProductLookup interface {
	Get(ctx context.Context, productID string) (*catalog.Product, error)
}

// SignatureVerifier checks checkout signatures; payment.Signer implements it.
// An error means the check could not run, not that the signature is bad.
type SignatureVerifier interface {
	Verify(gatewayOrderID, gatewayPaymentID, signature string) (bool, error)
}

// Metrics is the optional counter sink; aws.MetricsPublisher implements it.
type Metrics interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string) error
}
