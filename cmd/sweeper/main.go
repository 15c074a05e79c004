package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/app"
	"github.com/grupo-shop/orderflow/internal/config"
	"github.com/grupo-shop/orderflow/internal/lifecycle"
	"github.com/grupo-shop/orderflow/internal/logging"
)

// sweepResult is returned to the scheduler for visibility in the invocation log.
type sweepResult struct {
	Cancelled int `json:"cancelled"`
}

func handler(engine *lifecycle.Engine, logger *zap.Logger) func(context.Context, events.CloudWatchEvent) (sweepResult, error) {
	return func(ctx context.Context, ev events.CloudWatchEvent) (sweepResult, error) {
		n, err := engine.SweepExpired(ctx)
		// let metrics flush before the sandbox freezes
		engine.Wait()
		if err != nil {
			logger.Error("expiry sweep finished with errors",
				zap.String("event_id", ev.ID),
				zap.Int("cancelled", n),
				zap.Error(err))
			return sweepResult{Cancelled: n}, err
		}
		logger.Info("expiry sweep finished", zap.String("event_id", ev.ID), zap.Int("cancelled", n))
		return sweepResult{Cancelled: n}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.Must(cfg.LogLevel, cfg.AppEnv)
	defer logger.Sync()

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to init app", zap.Error(err))
	}
	defer a.Close()

	h := handler(a.Engine, logger)
	if cfg.RunLocal {
		if _, err := h(context.Background(), events.CloudWatchEvent{ID: "local"}); err != nil {
			logger.Fatal("local sweep failed", zap.Error(err))
		}
		return
	}
	lambda.Start(h)
}
