package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/app"
	"github.com/grupo-shop/orderflow/internal/config"
	"github.com/grupo-shop/orderflow/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.Must(cfg.LogLevel, cfg.AppEnv)
	defer logger.Sync()

	p := NewProcessor(app.DirectNotifier(cfg, logger), logger)

	// RUN_LOCAL=true delivers a single message from LOCAL_SQS_BODY and exits.
	if cfg.RunLocal {
		body := localBody()
		resp, err := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local delivery failed", zap.Error(err))
		}
		return
	}

	lambda.Start(p.Handle)
}

func localBody() string {
	if body := os.Getenv("LOCAL_SQS_BODY"); body != "" {
		return body
	}
	return `{"kind":"order_confirmed","order":{"id":"local-order-1","order_number":"GRP-LOCAL-000001","customer_name":"Local Tester","customer_phone":"9999999999","total_amount":2289}}`
}
