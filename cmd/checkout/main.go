package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	_ "github.com/kirinyoku/eventhub-checkout/docs"
	"github.com/kirinyoku/eventhub-checkout/internal/app"
	"github.com/kirinyoku/eventhub-checkout/internal/config"
)

// @title EventHub Checkout API
// @version 1.0
// @description Booking checkout for EventHub: quotes, promo codes, points and submission.
// @host localhost:8080
// @BasePath /
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// amounts go out as JSON numbers, as EventHub sends them
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
