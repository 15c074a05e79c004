// Package app wires the process-scoped dependencies shared by every command.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/aws"
	"github.com/grupo-shop/orderflow/internal/catalog"
	"github.com/grupo-shop/orderflow/internal/config"
	"github.com/grupo-shop/orderflow/internal/handlers"
	"github.com/grupo-shop/orderflow/internal/idempotency"
	"github.com/grupo-shop/orderflow/internal/lifecycle"
	"github.com/grupo-shop/orderflow/internal/notify"
	"github.com/grupo-shop/orderflow/internal/orders"
	"github.com/grupo-shop/orderflow/internal/payment"
	"github.com/grupo-shop/orderflow/internal/sqlite"
)

// App holds the long-lived collaborators of one process.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Engine      *lifecycle.Engine
	Orders      lifecycle.OrderStore
	Catalog     handlers.ProductCatalog
	Idempotency handlers.IdempotencyStore

	closers []func() error
}

// New builds the store, gateway, notifier and engine selected by cfg. AWS
// clients are only created when something configured actually needs them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	a := &App{Config: cfg, Logger: logger}

	var clients *aws.Clients
	if needsAWS(cfg) {
		c, err := aws.NewClients(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
		clients = c
	}

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		a.closers = append(a.closers, store.Close)
		a.Orders = store
		a.Catalog = sqlite.Catalog{Store: store}
	default:
		a.Orders = orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
		a.Catalog = catalog.NewStore(clients.DynamoDB, cfg.ProductsTable)
	}

	if cfg.IdempotencyTable != "" {
		a.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	}

	deps := lifecycle.Deps{
		Orders:     a.Orders,
		Products:   a.Catalog,
		Gateway:    payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret),
		Signatures: payment.NewSigner(cfg.RazorpayKeySecret),
		Logger:     logger,
	}
	if cfg.NotifyQueueURL != "" {
		deps.Notifier = notify.NewQueueNotifier(aws.NewPublisher(clients.SQS, cfg.NotifyQueueURL))
	} else {
		deps.Notifier = DirectNotifier(cfg, logger)
	}
	if cfg.MetricsNamespace != "" {
		deps.Metrics = aws.NewMetricsPublisher(clients.CloudWatch, cfg.MetricsNamespace)
	}

	a.Engine = lifecycle.NewEngine(deps, lifecycle.Config{
		Currency:     cfg.Currency,
		ShippingCost: cfg.ShippingCost,
		OrderExpiry:  cfg.OrderExpiry,
	})

	logger.Info("app initialised",
		zap.String("store", cfg.StoreDriver),
		zap.Bool("idempotency", a.Idempotency != nil),
		zap.Bool("queue_notifications", cfg.NotifyQueueURL != ""),
		zap.Bool("metrics", cfg.MetricsNamespace != ""))
	return a, nil
}

// DirectNotifier renders and sends notifications in process.
func DirectNotifier(cfg *config.Config, logger *zap.Logger) *notify.DirectNotifier {
	sender := notify.NewSender(cfg.WASenderBaseURL, cfg.WASenderAPIKey, logger)
	return notify.NewDirectNotifier(sender, cfg.TrackURL, logger)
}

// Router builds the HTTP API over the app's engine and stores.
func (a *App) Router() *gin.Engine {
	h := handlers.New(handlers.HandlerConfig{
		Orders:         a.Engine,
		Products:       a.Catalog,
		Idempotency:    a.Idempotency,
		PaymentLimiter: handlers.NewRateLimiter(5, time.Minute),
		Logger:         a.Logger,
		Environment:    a.Config.AppEnv,
	})
	return handlers.NewRouter(h)
}

// Sweeper returns the in-process expiry loop.
func (a *App) Sweeper() *lifecycle.Sweeper {
	return &lifecycle.Sweeper{Engine: a.Engine, Interval: a.Config.SweepEvery, Logger: a.Logger}
}

// Close waits for background notifications and releases the store.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func needsAWS(cfg *config.Config) bool {
	return cfg.StoreDriver == config.DriverDynamoDB ||
		cfg.IdempotencyTable != "" ||
		cfg.NotifyQueueURL != "" ||
		cfg.MetricsNamespace != ""
}
