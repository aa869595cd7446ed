package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"callsense/internal/app"
	"callsense/internal/config"
	"callsense/internal/observability"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	cfg, err := config.Load(os.Getenv("CS_CONFIG"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Dev.Mode)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "worker":
		err = runWorker(ctx, cfg, logger)
	default:
		usage()
		return
	}
	if err != nil {
		logger.Error("exiting", zap.String("command", cmd), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("app init: %w", err)
	}
	defer a.Close()
	return a.Serve(ctx)
}

func runWorker(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("app init: %w", err)
	}
	defer a.Close()
	w, err := a.Worker()
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func usage() {
	fmt.Println("Usage: callsensed <serve|worker>")
}
