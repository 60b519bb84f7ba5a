package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"castgate/internal/config"
	"castgate/internal/infra/db"
	httpinfra "castgate/internal/infra/http"
	"castgate/internal/infra/logging"

	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	srv, err := httpinfra.NewServer(ctx, cfg, store, logger)
	if err != nil {
		logger.Fatal("failed to init server", zap.Error(err))
	}
	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
