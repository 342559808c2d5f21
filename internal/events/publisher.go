package events

import (
	"context"
	"encoding/json"
	"time"

	"stocksync/internal/logger"

	"github.com/segmentio/kafka-go"
)

// WebhookQueued is the message carried between the API binary and the
// worker. Only the id travels; the payload lives in the database.
type WebhookQueued struct {
	WebhookID  string    `json:"webhook_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type Publisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewPublisher(brokers, topic string, logger *logger.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}
}

// PublishWebhook queues a persisted webhook id for asynchronous processing.
// A publish failure is not fatal for the caller: the worker's recovery sweep
// picks up any persisted-but-unpublished event.
func (p *Publisher) PublishWebhook(ctx context.Context, webhookID string) error {
	msg := WebhookQueued{
		WebhookID:  webhookID,
		EnqueuedAt: time.Now(),
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(webhookID),
		Value: value,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
