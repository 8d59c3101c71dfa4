package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/domain"
	"github.com/TemirB/musicnft/internal/kafka"
	"github.com/TemirB/musicnft/internal/observability"
	"github.com/TemirB/musicnft/internal/pkg/retry"
)

//go:generate mockgen -source internal/application/handler/handler.go -destination=internal/application/handler/handler_mock_test.go -package=handler

var (
	ErrBadJSON     = errors.New("bad json")
	ErrApply       = errors.New("apply listing event failed")
	ErrCircuitOpen = errors.New("circuit breaker open")
)

type Service interface {
	Apply(ctx context.Context, ev *domain.ListingEvent) error
}

type brk interface {
	Allow() error
	Success()
	Failure()
}

type Handler struct {
	service     Service
	breaker     brk
	logger      *zap.Logger
	metrics     observability.Metrics
	retryPolicy config.Retry
}

func NewHandler(service Service, breaker brk, retryPolicy config.Retry, logger *zap.Logger, metrics observability.Metrics) *Handler {
	if metrics == nil {
		metrics = observability.Noop{}
	}
	return &Handler{
		service:     service,
		breaker:     breaker,
		logger:      logger,
		metrics:     metrics,
		retryPolicy: retryPolicy,
	}
}

// Handle applies one listing event. The consumer commits the offset only when
// nil is returned.
func (h *Handler) Handle(ctx context.Context, message kafkago.Message) (err error) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveKafka(float64(time.Since(start).Microseconds())/1000.0, err == nil)
	}()

	if err := h.breaker.Allow(); err != nil {
		h.logger.Warn("circuit breaker is open",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	var ev domain.ListingEvent
	if err := json.Unmarshal(message.Value, &ev); err != nil {
		h.logger.Error("bad json format",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return fmt.Errorf("%w: %w", kafka.ErrUnprocessable, ErrBadJSON)
	}
	if ev.Listing.TokenID == nil {
		h.logger.Error("missing token_id",
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return fmt.Errorf("%w: %w", kafka.ErrUnprocessable, ErrBadJSON)
	}

	if err := retry.Do(ctx, h.retryPolicy, func() error {
		err := h.service.Apply(ctx, &ev)
		if errors.Is(err, domain.ErrValidation) {
			return retry.Permanent(err)
		}
		return err
	}); err != nil {
		h.logger.Error("apply failed after retries",
			zap.String("token_id", ev.Listing.TokenID.String()),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		if errors.Is(err, domain.ErrValidation) {
			return fmt.Errorf("%w: %w: %w", ErrApply, kafka.ErrUnprocessable, err)
		}
		return fmt.Errorf("%w: %w", ErrApply, err)
	}

	h.breaker.Success()
	h.logger.Info("listing event applied",
		zap.String("token_id", ev.Listing.TokenID.String()),
		zap.String("type", string(ev.Type)),
		zap.Int("partition", message.Partition),
		zap.Int64("offset", message.Offset),
	)
	return nil
}
