package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/feisbook/docs"
	"github.com/kirinyoku/feisbook/internal/app"
	"github.com/kirinyoku/feisbook/internal/config"
)

// @title Feisbook API
// @version 1.0
// @description Event registration and booking with hosted checkout.
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

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
