// Package notify delivers best-effort customer messages for order lifecycle
// events. Nothing here may block or fail an order operation.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/orders"
)

// Kind names a customer-facing lifecycle event.
type Kind string

const (
	KindConfirmed Kind = "order_confirmed"
	KindShipped   Kind = "order_shipped"
	KindDelivered Kind = "order_delivered"
	KindCancelled Kind = "order_cancelled"
)

// KindForStatus maps an admin status change to the message it triggers.
func KindForStatus(s orders.Status) (Kind, bool) {
	switch s {
	case orders.StatusShipped:
		return KindShipped, true
	case orders.StatusDelivered:
		return KindDelivered, true
	case orders.StatusCancelled:
		return KindCancelled, true
	}
	return "", false
}

// ErrUndeliverable marks messages that can never be sent, such as an
// unknown kind or an order without a phone number. Retrying them is pointless.
var ErrUndeliverable = errors.New("notification undeliverable")

// Message is the queued notification envelope.
type Message struct {
	Kind  Kind         `json:"kind"`
	Order orders.Order `json:"order"`
}

// Notifier dispatches a notification. Implementations may return errors;
// callers log them and move on.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, order orders.Order) error
}

// Sender delivers a rendered text to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// publisher is the queue side of aws.Publisher.
type publisher interface {
	Publish(ctx context.Context, payload any, attributes map[string]string) error
}

// QueueNotifier hands messages to the notification worker over SQS.
type QueueNotifier struct {
	pub publisher
}

func NewQueueNotifier(pub publisher) *QueueNotifier {
	return &QueueNotifier{pub: pub}
}

func (q *QueueNotifier) Notify(ctx context.Context, kind Kind, order orders.Order) error {
	err := q.pub.Publish(ctx, Message{Kind: kind, Order: order}, map[string]string{
		"kind":     string(kind),
		"order_id": order.ID,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", kind, order.ID, err)
	}
	return nil
}

// DirectNotifier renders and sends in process. The API uses it in local
// mode and the worker uses it to drain the queue.
type DirectNotifier struct {
	sender   Sender
	trackURL string
	logger   *zap.Logger
}

func NewDirectNotifier(sender Sender, trackURL string, logger *zap.Logger) *DirectNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectNotifier{sender: sender, trackURL: trackURL, logger: logger}
}

func (d *DirectNotifier) Notify(ctx context.Context, kind Kind, order orders.Order) error {
	return d.Deliver(ctx, Message{Kind: kind, Order: order})
}

// Deliver renders msg and sends it to the order's customer phone.
func (d *DirectNotifier) Deliver(ctx context.Context, msg Message) error {
	if msg.Order.Customer.Phone == "" {
		return fmt.Errorf("order %s has no customer phone: %w", msg.Order.ID, ErrUndeliverable)
	}
	text, err := Render(msg.Kind, msg.Order, d.trackURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUndeliverable, err)
	}
	if err := d.sender.Send(ctx, msg.Order.Customer.Phone, text); err != nil {
		return fmt.Errorf("send %s for %s: %w", msg.Kind, msg.Order.OrderNumber, err)
	}
	d.logger.Info("notification sent",
		zap.String("kind", string(msg.Kind)),
		zap.String("order_number", msg.Order.OrderNumber))
	return nil
}
