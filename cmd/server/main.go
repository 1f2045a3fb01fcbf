package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tableio/internal/app"
	"github.com/JonMunkholm/tableio/internal/config"
	"github.com/JonMunkholm/tableio/internal/logging"
	"github.com/JonMunkholm/tableio/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"database", cfg.Database.Enabled(),
		"eval_max_concurrent", cfg.Eval.MaxConcurrent,
		"mounts", len(cfg.Storage.Mounts),
		"s3", cfg.S3.Endpoint != "",
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	ctx := context.Background()

	stateStore, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open state store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	svc, err := app.NewService(cfg, stateStore)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	// Create server with config
	server := web.NewServer(svc, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running evaluations to complete (with timeout)
		status := svc.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for evaluations to complete", "active", status.Active)
			if err := svc.Drain(shutdownCtx); err != nil {
				slog.Warn("evaluations did not complete in time", "error", err)
			} else {
				slog.Info("all evaluations completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
