package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/config"
)

// ErrUnprocessable marks a message that can never be handled, such as
// malformed JSON. The consumer commits past it instead of retrying.
var ErrUnprocessable = errors.New("unprocessable message")

type MessageHandler interface {
	Handle(ctx context.Context, msg kafkago.Message) error
}

type Reader interface {
	Config() kafkago.ReaderConfig
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// NewReader builds a group reader for the listings topic.
func NewReader(cfg config.Kafka) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.Group,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
}

type Consumer struct {
	handler MessageHandler
	reader  Reader
	logger  *zap.Logger

	workers int
	jobs    chan jobItem

	idleBackoff  time.Duration
	errorBackoff time.Duration
}

type jobItem struct {
	msg    kafkago.Message
	result chan error
}

func NewConsumer(handler MessageHandler, reader Reader, workers int, logger *zap.Logger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		handler:      handler,
		reader:       reader,
		logger:       logger,
		workers:      workers,
		jobs:         make(chan jobItem, workers*2),
		idleBackoff:  10 * time.Second,
		errorBackoff: 500 * time.Millisecond,
	}
}

// Start blocks until ctx is done. Each fetched message is handed to a worker and
// the loop waits for its result, so offsets are committed in fetch order.
func (c *Consumer) Start(ctx context.Context) {
	rc := c.reader.Config()
	c.logger.Info("Starting Kafka consumer",
		zap.Strings("brokers", rc.Brokers),
		zap.String("group", rc.GroupID),
		zap.String("topic", rc.Topic),
		zap.Int("workers", c.workers),
	)

	for i := 0; i < c.workers; i++ {
		go c.worker(ctx, i)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if isBenignFetchTimeout(err) {
				c.logger.Debug("fetch timeout (idle), backing off", zap.Error(err))
				sleepWithContext(ctx, c.idleBackoff)
				continue
			}
			c.logger.Warn("FetchMessage error, backing off", zap.Error(err))
			sleepWithContext(ctx, c.errorBackoff)
			continue
		}

		if !c.process(ctx, msg) {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("commit failed",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			continue
		}
		c.logger.Debug("message committed",
			zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
	}
}

// process hands msg to a worker until it is handled or found unprocessable.
// A transient failure is retried on the same message with growing backoff,
// so later offsets of the partition are never committed past it. It returns
// false when ctx is done.
func (c *Consumer) process(ctx context.Context, msg kafkago.Message) bool {
	backoff := c.errorBackoff
	for attempt := 1; ; attempt++ {
		done := make(chan error, 1)
		select {
		case c.jobs <- jobItem{msg: msg, result: done}:
		case <-ctx.Done():
			return false
		}

		var err error
		select {
		case err = <-done:
		case <-ctx.Done():
			return false
		}

		switch {
		case err == nil:
			return true
		case errors.Is(err, ErrUnprocessable):
			c.logger.Error("Message is unprocessable, skipping", zap.Error(err),
				zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
			return true
		}

		c.logger.Warn("handler failed, retrying message", zap.Error(err), zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
		sleepWithContext(ctx, backoff)
		if ctx.Err() != nil {
			return false
		}
		backoff = min(backoff*2, c.idleBackoff)
	}
}

func (c *Consumer) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-c.jobs:
			start := time.Now()
			err := c.handler.Handle(ctx, it.msg)
			if err == nil {
				c.logger.Debug("message handled",
					zap.Int("worker", id),
					zap.Int64("offset", it.msg.Offset),
					zap.Int("value_bytes", len(it.msg.Value)),
					zap.Duration("elapsed", time.Since(start)),
				)
			}
			it.result <- err
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isBenignFetchTimeout(err error) bool {
	s := err.Error()
	return strings.Contains(s, "Request Timed Out") ||
		strings.Contains(s, "no messages received from kafka within the allocated time")
}
