package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/risehi/Pulse32/internal/config"
	"github.com/risehi/Pulse32/internal/core"
)

const defaultConfigPath = "config/pulse32.yaml"

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup structured logger
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting pulse32 service",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	svc, err := core.New(cfg)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	// Start health check HTTP server (non-blocking)
	if err := svc.StartHealthServer(cfg.Health.Port); err != nil {
		slog.Error("failed to start health check server", "error", err)
		os.Exit(1)
	}

	// Run service in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Run(ctx) // Always send, even if nil
	}()

	// Wait for shutdown signal or error
	var shutdownErr error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Cancel the context
	case shutdownErr = <-errChan:
		if shutdownErr != nil {
			slog.Error("service error", "error", shutdownErr)
		} else {
			slog.Info("service stopped")
		}
	}

	// Graceful shutdown
	shutdownTimeout := svc.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("pulse32 service stopped successfully")
}
