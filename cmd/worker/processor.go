package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/notify"
)

// deliverer is the in-process sending half of notify.DirectNotifier.
type deliverer interface {
	Deliver(ctx context.Context, msg notify.Message) error
}

// Processor drains the notification queue. Malformed and undeliverable
// messages are logged and dropped; send failures are reported back to SQS
// as batch item failures so only those messages are retried.
type Processor struct {
	notifier deliverer
	logger   *zap.Logger
}

func NewProcessor(notifier deliverer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{notifier: notifier, logger: logger}
}

// Handle receives an SQS batch event and delivers each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Warn("notification delivery failed, will retry",
				zap.String("message_id", rec.MessageId),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg notify.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		p.logger.Error("dropping malformed notification",
			zap.String("message_id", rec.MessageId),
			zap.Error(err))
		return nil
	}

	log := p.logger.With(
		zap.String("kind", string(msg.Kind)),
		zap.String("order_id", msg.Order.ID),
		zap.String("order_number", msg.Order.OrderNumber))

	err := p.notifier.Deliver(ctx, msg)
	if errors.Is(err, notify.ErrUndeliverable) {
		log.Warn("dropping undeliverable notification", zap.Error(err))
		return nil
	}
	return err
}
