package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers
const (
	DriverDynamoDB = "dynamodb"
	DriverSQLite   = "sqlite"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Port     string `envconfig:"PORT" default:"8080"`
	RunLocal bool   `envconfig:"RUN_LOCAL" default:"false"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"dynamodb"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"orderflow.db"`

	AWSRegion        string        `envconfig:"AWS_REGION" default:"ap-south-1"`
	OrdersTable      string        `envconfig:"ORDERS_TABLE" default:"orders"`
	ProductsTable    string        `envconfig:"PRODUCTS_TABLE" default:"products"`
	IdempotencyTable string        `envconfig:"IDEMPOTENCY_TABLE" default:""`
	IdempotencyTTL   time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	NotifyQueueURL   string        `envconfig:"NOTIFY_QUEUE_URL" default:""`
	MetricsNamespace string        `envconfig:"METRICS_NAMESPACE" default:""`

	RazorpayKeyID     string `envconfig:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string `envconfig:"RAZORPAY_KEY_SECRET"`

	Currency     string        `envconfig:"CURRENCY" default:"INR"`
	ShippingCost float64       `envconfig:"SHIPPING_COST" default:"299"`
	OrderExpiry  time.Duration `envconfig:"ORDER_EXPIRY" default:"30m"`
	SweepEvery   time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`

	WASenderAPIKey  string `envconfig:"WASENDER_API_KEY"`
	WASenderBaseURL string `envconfig:"WASENDER_BASE_URL" default:"https://wasenderapi.com/api"`
	TrackURL        string `envconfig:"TRACK_URL" default:"https://grupo.in/shop/track?order="`
}

// ErrTestKeyInProduction is returned when a sandbox gateway key is configured
// with APP_ENV=production.
var ErrTestKeyInProduction = errors.New("razorpay test key configured in production")

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that must never boot.
func (c *Config) Validate() error {
	if c.IsProduction() && strings.HasPrefix(c.RazorpayKeyID, "rzp_test_") {
		return ErrTestKeyInProduction
	}
	switch c.StoreDriver {
	case DriverDynamoDB, DriverSQLite:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.ShippingCost < 0 {
		return fmt.Errorf("SHIPPING_COST must not be negative")
	}
	if c.OrderExpiry <= 0 || c.SweepEvery <= 0 {
		return fmt.Errorf("ORDER_EXPIRY and SWEEP_INTERVAL must be positive")
	}
	return nil
}

// Warnings lists non-fatal gaps worth logging at startup.
func (c *Config) Warnings() []string {
	var w []string
	if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
		w = append(w, "RAZORPAY_KEY_ID / RAZORPAY_KEY_SECRET not set; payment intents will fail")
	}
	if c.WASenderAPIKey == "" {
		w = append(w, "WASENDER_API_KEY not set; notifications will only be logged")
	}
	return w
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
