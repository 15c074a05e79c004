package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/orders"
)

// SweepExpired cancels every unpaid payment_pending order older than the
// expiry window. Per-order failures are collected and do not stop the sweep.
// Paid orders are excluded twice: by the listing filter and by the write guard.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.OrderExpiry)
	stale, err := e.orders.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired orders: %w", err)
	}

	var (
		cancelled []string
		errs      []error
	)
	for _, o := range stale {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := e.orders.Update(ctx, o.ID, orders.Update{
			Status:        orders.StatusCancelled,
			PaymentStatus: orders.PaymentFailed,
			FailureReason: string(CodeExpired),
			Lock:          true,
			Guard:         orders.GuardNotPaid,
		})
		if errors.Is(err, orders.ErrConditionFailed) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", o.ID, err))
			continue
		}
		cancelled = append(cancelled, o.OrderNumber)
	}

	if len(cancelled) > 0 {
		e.logger.Info("cancelled expired orders",
			zap.Int("count", len(cancelled)),
			zap.Strings("order_numbers", cancelled))
		e.count("OrdersExpired", float64(len(cancelled)), nil)
	}
	return len(cancelled), errors.Join(errs...)
}

// Sweeper runs SweepExpired on a fixed interval until its context ends.
type Sweeper struct {
	Engine   *Engine
	Interval time.Duration
	Logger   *zap.Logger
}

func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("expiry sweeper started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Engine.SweepExpired(ctx); err != nil {
				logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}
