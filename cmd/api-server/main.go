// Command api-server runs the academy referral and checkout ledger.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	ledger "github.com/xenking/academy-ledger/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := ledger.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		lg.Info("Starting academy ledger",
			zap.String("payment_mode", cfg.Payment.Mode),
			zap.Bool("events", len(cfg.Kafka.Brokers) > 0),
		)
		return ledger.Run(ctx, lg, m, cfg)
	})
}
