package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/application/handler"
	"github.com/TemirB/musicnft/internal/application/service"
	"github.com/TemirB/musicnft/internal/cache"
	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/database"
	"github.com/TemirB/musicnft/internal/gateway"
	"github.com/TemirB/musicnft/internal/httpapi"
	"github.com/TemirB/musicnft/internal/kafka"
	"github.com/TemirB/musicnft/internal/observability"
	"github.com/TemirB/musicnft/internal/pinning"
	"github.com/TemirB/musicnft/internal/pkg/breaker"
)

func main() {
	cfg := config.LoadProxy()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewPrometheus(registry)

	lru, err := cache.New(cfg.CacheCap, cfg.CacheTTL)
	if err != nil {
		logger.Fatal("Failed to create cache", zap.Error(err))
	}

	opts := httpapi.Options{
		MaxUploadBytes: cfg.UploadMaxBytes,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	var pinner service.Pinner
	switch cfg.Pinning.Backend {
	case config.PinBackendMemory:
		mem := pinning.NewMemory()
		pinner = mem
		opts.Content = mem
	default:
		pinner = pinning.NewPinata(cfg.Pinning.URL, cfg.Pinning.JWT, logger)
	}

	var store service.Store
	if cfg.Pg.Enabled() {
		pool, err := database.Connect(ctx, cfg.DSN(), logger)
		if err != nil {
			logger.Fatal("Failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		repo := database.New(pool, cfg.Tables)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare schema", zap.Error(err))
		}
		lru.Warm(ctx, repo)
		logger.Info("Cache warmed", zap.Int("documents", lru.Len()))
		store = repo

		listings := service.NewListings(repo, logger)
		opts.Listings = listings

		if cfg.Kafka.Enabled() {
			startConsumer(ctx, cfg, listings, logger, metrics)
		}
	} else if cfg.Kafka.Enabled() {
		logger.Warn("KAFKA_BROKERS is set without postgres, listing events are not consumed")
	}

	fetcher := gateway.New(cfg.Gateway, cfg.Breaker, logger, metrics)
	svc := service.NewService(lru, fetcher, pinner, store, logger, metrics)

	server := httpapi.New(svc, logger, metrics, opts)
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func startConsumer(ctx context.Context, cfg config.Proxy, listings *service.Listings, logger *zap.Logger, metrics observability.Metrics) {
	if err := kafka.EnsureTopic(ctx, cfg.Kafka, logger); err != nil {
		logger.Warn("Failed to ensure topic", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
	}

	reader := kafka.NewReader(cfg.Kafka)
	h := handler.NewHandler(listings, breaker.New(cfg.Breaker), cfg.Retry, logger, metrics)
	consumer := kafka.NewConsumer(h, reader, cfg.Kafka.Workers, logger)

	go func() {
		defer func() {
			if err := reader.Close(); err != nil {
				logger.Warn("Failed to close reader", zap.Error(err))
			}
		}()
		consumer.Start(ctx)
	}()
	logger.Info("Listing consumer started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.Group),
	)
}
