package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/domain"
)

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

func NewWriter(cfg config.Kafka) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// Publisher writes listing events keyed by token id, so every change to one
// token lands on the same partition.
type Publisher struct {
	writer Writer
	logger *zap.Logger
}

func NewPublisher(w Writer, logger *zap.Logger) *Publisher {
	return &Publisher{writer: w, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, events ...domain.ListingEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(events))
	for _, ev := range events {
		if ev.Listing.TokenID == nil {
			return fmt.Errorf("%w: event without token id", domain.ErrValidation)
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(ev.Listing.TokenID.String()),
			Value: b,
			Time:  ev.ObservedAt,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d listing events: %w", len(msgs), err)
	}
	p.logger.Debug("listing events published", zap.Int("count", len(msgs)))
	return nil
}

func (p *Publisher) Close() error { return p.writer.Close() }
