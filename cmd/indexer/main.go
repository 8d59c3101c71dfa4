package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/chain"
	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/kafka"
	"github.com/TemirB/musicnft/internal/listingindex"
	"github.com/TemirB/musicnft/internal/observability"
)

// indexer probes the marketplace and publishes listing changes to Kafka,
// where the proxy picks them up for GET /listings.
func main() {
	cfg := config.LoadIndexer()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := chain.Connect(cfg.Client, logger)
	if err != nil {
		logger.Fatal("Failed to connect to chain", zap.Error(err))
	}

	if err := kafka.EnsureTopic(ctx, cfg.Kafka, logger); err != nil {
		logger.Warn("Failed to ensure topic", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
	}
	publisher := kafka.NewPublisher(kafka.NewWriter(cfg.Kafka), logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close writer", zap.Error(err))
		}
	}()

	probe := listingindex.NewProbe(session.Market, cfg.Probe, logger)
	watcher := listingindex.NewWatcher(probe, publisher, logger)
	if err := watcher.Seed(ctx, listingindex.NewStore(cfg.BackendURL)); err != nil {
		logger.Warn("Failed to seed listings from proxy", zap.String("backend", cfg.BackendURL), zap.Error(err))
	}

	logger.Info("Indexer started",
		zap.String("market", session.Marketplace),
		zap.Duration("interval", cfg.Interval),
		zap.String("topic", cfg.Kafka.Topic),
	)
	watcher.Run(ctx, cfg.Interval)
	logger.Info("Indexer stopped")
}
