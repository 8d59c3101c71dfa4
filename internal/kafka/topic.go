package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/musicnft/internal/config"
)

const topicReadyTimeout = 10 * time.Second

// EnsureTopic creates the listings topic when it is missing and waits until its
// partitions show up in metadata.
func EnsureTopic(ctx context.Context, cfg config.Kafka, log *zap.Logger) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return errors.New("empty topic")
	}
	spec := kafkago.TopicConfig{
		Topic:             cfg.Topic,
		NumPartitions:     max(cfg.Partitions, 1),
		ReplicationFactor: max(cfg.Replication, 1),
	}

	client := &kafkago.Client{Addr: kafkago.TCP(cfg.Brokers...), Timeout: 10 * time.Second}

	n, err := partitionCount(ctx, client, spec.Topic)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info("Kafka topic exists", zap.String("topic", spec.Topic), zap.Int("partitions", n))
		return nil
	}

	log.Info("Creating Kafka topic",
		zap.String("topic", spec.Topic),
		zap.Int("partitions", spec.NumPartitions),
		zap.Int("replication", spec.ReplicationFactor),
	)
	resp, err := client.CreateTopics(ctx, &kafkago.CreateTopicsRequest{Topics: []kafkago.TopicConfig{spec}})
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	if err := resp.Errors[spec.Topic]; err != nil && !errors.Is(err, kafkago.TopicAlreadyExists) {
		return fmt.Errorf("create topic: %w", err)
	}

	deadline := time.Now().Add(topicReadyTimeout)
	for {
		n, err := partitionCount(ctx, client, spec.Topic)
		if err == nil && n >= spec.NumPartitions {
			log.Info("Kafka topic is ready", zap.String("topic", spec.Topic), zap.Int("partitions", n))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("topic %s not visible after creation", spec.Topic)
		}
		sleepWithContext(ctx, 500*time.Millisecond)
	}
}

// partitionCount is zero when the broker does not know the topic.
func partitionCount(ctx context.Context, client *kafkago.Client, topic string) (int, error) {
	meta, err := client.Metadata(ctx, &kafkago.MetadataRequest{Topics: []string{topic}})
	if err != nil {
		return 0, fmt.Errorf("read metadata: %w", err)
	}
	for _, t := range meta.Topics {
		if t.Name == topic && t.Error == nil {
			return len(t.Partitions), nil
		}
	}
	return 0, nil
}
