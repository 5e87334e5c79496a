package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/logger"
)

// Handler processes one message. A returned error is logged and the offset
// is still committed; poison messages must not stall the group.
type Handler func(ctx context.Context, topic string, key, value []byte) error

type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

func NewConsumer(brokers, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupTopics: topics,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handle Handler) error {
	c.log.Info("KAFKA", "Kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		if err := handle(ctx, msg.Topic, msg.Key, msg.Value); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("Handler failed for %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("KAFKA", fmt.Sprintf("Commit failed for %s@%d: %v", msg.Topic, msg.Offset, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
