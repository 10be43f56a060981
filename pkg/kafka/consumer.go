// Package kafka provides the producer and consumer used to ship analytics
// events through a Kafka topic, backed by segmentio/kafka-go. Values are
// JSON on the wire.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

// MessageHandler processes one message. The offset is committed only when
// it returns nil.
type MessageHandler func(ctx context.Context, key, value []byte) error

// reader is the part of *kafka.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds a topic, as a member of the configured consumer group,
// to a MessageHandler.
type Consumer struct {
	reader     reader
	handler    MessageHandler
	logger     *slog.Logger
	maxBackoff time.Duration
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		CommitInterval: 0,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:     r,
		handler:    handler,
		logger:     slog.Default().With("component", "kafka-consumer", "topic", topic),
		maxBackoff: 5 * time.Second,
	}
}

// Run consumes until ctx is done and then closes the reader. Fetch errors
// back off exponentially; handler errors leave the message uncommitted.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", "error", err)
		}
	}()
	c.logger.Info("consumer started")

	backoff := 100 * time.Millisecond
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return nil
		}
		if err != nil {
			c.logger.Error("fetching message", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff = min(2*backoff, c.maxBackoff)
			continue
		}
		backoff = 100 * time.Millisecond

		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			log.Error("handling message", "error", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error("committing message", "error", err)
		}
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}
