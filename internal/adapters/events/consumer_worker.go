package events

import (
	"context"
	"log/slog"
	"time"
)

// Message is a single inbound event pulled off the broker. Partition and
// Offset identify the message for the commit that follows a successful
// handle.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Payload   []byte
}

// Consumer pulls inbound billing events. Poll must return promptly when the
// poll window elapses so the worker can observe context cancellation.
// Messages are not considered consumed until Commit is called for them.
type Consumer interface {
	Poll(ctx context.Context, max int) ([]Message, error)
	Commit(ctx context.Context, msg Message) error
	Close() error
}

// Handler processes one inbound event payload. Returning an error leaves
// the message uncommitted, so the broker redelivers it on a later poll.
// Handlers deduplicate by event_id, which makes redelivery harmless.
type Handler func(ctx context.Context, payload []byte) error

type ConsumerWorker struct {
	consumer Consumer
	handlers map[string]Handler
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewConsumerWorker(consumer Consumer, handlers map[string]Handler, logger *slog.Logger, interval time.Duration, batch int) *ConsumerWorker {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &ConsumerWorker{
		consumer: consumer,
		handlers: handlers,
		logger:   logger,
		interval: interval,
		batch:    batch,
	}
}

// Run polls until ctx is cancelled.
func (w *ConsumerWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *ConsumerWorker) drain(ctx context.Context) {
	msgs, err := w.consumer.Poll(ctx, w.batch)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.ErrorContext(ctx, "event poll failed",
			"module", "events.consumer",
			"layer", "adapter",
			"operation", "poll",
			"outcome", "failure",
			"error", err.Error(),
		)
		return
	}

	for _, msg := range msgs {
		handler, ok := w.handlers[msg.Topic]
		if !ok {
			// Unroutable messages are committed so they cannot wedge the
			// partition behind them.
			w.logger.WarnContext(ctx, "no handler for topic",
				"module", "events.consumer",
				"layer", "adapter",
				"operation", "dispatch",
				"outcome", "skipped",
				"topic", msg.Topic,
			)
			w.commit(ctx, msg)
			continue
		}
		if err := handler(ctx, msg.Payload); err != nil {
			// Leave this message and everything after it uncommitted; the
			// whole tail is redelivered on a later poll.
			w.logger.ErrorContext(ctx, "event handling failed",
				"module", "events.consumer",
				"layer", "adapter",
				"operation", "dispatch",
				"outcome", "failure",
				"topic", msg.Topic,
				"error", err.Error(),
			)
			return
		}
		w.commit(ctx, msg)
	}
}

func (w *ConsumerWorker) commit(ctx context.Context, msg Message) {
	if err := w.consumer.Commit(ctx, msg); err != nil {
		// A failed commit means the message is handled again after
		// redelivery; handler dedup absorbs that.
		w.logger.WarnContext(ctx, "offset commit failed",
			"module", "events.consumer",
			"layer", "adapter",
			"operation", "commit",
			"outcome", "failure",
			"topic", msg.Topic,
			"error", err.Error(),
		)
	}
}
