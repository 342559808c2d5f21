package worker

import (
	"context"
	"encoding/json"
	"time"

	"stocksync/internal/config"
	"stocksync/internal/events"
	"stocksync/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Worker consumes queued webhook ids from Kafka and runs the processor. A
// periodic recovery sweep re-processes persisted events whose queue message
// was lost or that predate a restart, so delivery is at-least-once end to
// end.
type Worker struct {
	config    *config.Config
	logger    *logger.Logger
	reader    *kafka.Reader
	processor *Processor
	store     Store

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg *config.Config, logger *logger.Logger, processor *Processor, store Store) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{cfg.KafkaBrokers},
		GroupID:        "stocksync-worker",
		Topic:          cfg.WebhookTopic,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})

	return &Worker{
		config:    cfg,
		logger:    logger,
		reader:    reader,
		processor: processor,
		store:     store,
		done:      make(chan struct{}),
	}
}

func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go w.recoveryLoop(ctx)

	w.logger.Info("Worker started, listening for webhook events...")

	for {
		readCtx, readCancel := context.WithTimeout(ctx, 10*time.Second)
		message, err := w.reader.ReadMessage(readCtx)
		readCancel()

		if ctx.Err() != nil {
			close(w.done)
			return
		}
		if err != nil {
			if err != context.DeadlineExceeded {
				w.logger.Error("Failed to read message: %v", err)
			}
			continue
		}

		var queued events.WebhookQueued
		if err := json.Unmarshal(message.Value, &queued); err != nil {
			w.logger.Error("Failed to parse queued webhook: %v", err)
			continue
		}

		w.logger.Debug("Received queued webhook: %s", queued.WebhookID)
		w.processor.Process(ctx, queued.WebhookID)
	}
}

// recoveryLoop periodically re-enqueues unprocessed events older than the
// grace period. The processor's already-processed check makes a double
// pickup harmless.
func (w *Worker) recoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := w.store.GetPendingWebhooks(50)
		if err != nil {
			w.logger.Error("Recovery sweep failed to list pending webhooks: %v", err)
			continue
		}

		cutoff := time.Now().Add(-w.config.RecoveryGrace)
		recovered := 0
		for i := range pending {
			event := &pending[i]
			if event.ReceivedAt.After(cutoff) {
				continue
			}
			// Failed events carry an error; leave them for inspection
			// instead of retrying forever.
			if event.ProcessError != "" {
				continue
			}
			w.processor.Process(ctx, event.WebhookID)
			recovered++
		}

		if recovered > 0 {
			w.logger.Info("Recovery sweep processed %d stale webhooks", recovered)
		}
	}
}

func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	if w.cancel != nil {
		w.cancel()
	}
	w.reader.Close()
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
	}
}
