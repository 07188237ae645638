// Package kafka carries the pipeline's events over segmentio/kafka-go.
// Producers write JSON values keyed for partitioning. Consumers hand raw
// values to a MessageHandler and commit once the handler is done with them.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/resilience"
)

// ErrMalformed marks a message no retry can fix. The consumer commits past it.
var ErrMalformed = errors.New("malformed message")

// MessageHandler processes one message value.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ConsumerOption adjusts a Consumer before it starts.
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	fromStart bool
	retry     resilience.RetryConfig
}

// FromStart makes a new consumer group begin at the oldest retained message
// instead of the newest. Workers that must not miss an ingested work use it.
func FromStart() ConsumerOption {
	return func(o *consumerOptions) { o.fromStart = true }
}

// WithHandlerRetry sets how often a failing handler is retried before the
// message is committed anyway.
func WithHandlerRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(o *consumerOptions) { o.retry = cfg }
}

// Consumer reads one topic and feeds its messages to a handler.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewConsumer creates a Consumer for topic. group is appended to the
// configured consumer group so that every searcher replica can read all
// index updates under its own group.
func NewConsumer(cfg config.KafkaConfig, topic, group string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{retry: resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond}}
	for _, opt := range opts {
		opt(&o)
	}

	groupID := cfg.ConsumerGroup
	if group != "" {
		groupID += "-" + group
	}
	start := kafka.LastOffset
	if o.fromStart {
		start = kafka.FirstOffset
	}
	o.retry.Retryable = func(err error) bool { return !errors.Is(err, ErrMalformed) }

	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: start,
		}),
		handler: handler,
		retry:   o.retry,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", groupID),
	}
}

// Start consumes until ctx is cancelled. It always returns nil after a
// clean shutdown.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
		err = resilience.Retry(ctx, "kafka-handler", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		switch {
		case err == nil:
			log.Debug("message handled")
		case ctx.Err() != nil:
			// Left uncommitted so the group redelivers it after restart.
			return nil
		case errors.Is(err, ErrMalformed):
			log.Warn("skipping malformed message", "error", err)
		default:
			log.Error("handler failed, skipping message", "error", err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error("commit failed", "error", err)
		}
	}
}

// DecodeJSON unmarshals a message value into T. Failures wrap ErrMalformed.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return result, nil
}
