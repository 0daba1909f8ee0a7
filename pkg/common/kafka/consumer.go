package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/common/models"
)

// EventHandler processes one bus event. A returned error leaves the
// message uncommitted so the group redelivers it.
type EventHandler func(ctx context.Context, event models.Event) error

// Consumer reads bus events from a topic inside a consumer group.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})}
}

// Consume runs until ctx is canceled. Malformed messages are committed
// and skipped; handler failures are redelivered.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			logger.Log.WithError(err).Error("failed to fetch message")
			continue
		}

		var event models.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Log.WithError(err).WithField("offset", msg.Offset).Warn("skipping malformed message")
			c.reader.CommitMessages(ctx, msg)
			continue
		}

		if err := handler(ctx, event); err != nil {
			logger.Log.WithError(err).WithField("event_id", event.ID).Error("failed to process event")
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Log.WithError(err).Error("failed to commit message")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
