package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/skillforge/marketplace/internal/ports"
)

// OutboxWorker drains the transactional outbox and hands rows to the
// publisher. Publish failures are recorded on the row and retried on
// the next tick.
type OutboxWorker struct {
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	logger    *slog.Logger
	interval  time.Duration
	batch     int
}

func NewOutboxWorker(outbox ports.OutboxRepository, publisher ports.EventPublisher, logger *slog.Logger, interval time.Duration, batch int) *OutboxWorker {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &OutboxWorker{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batch:     batch,
	}
}

func (w *OutboxWorker) Run(ctx context.Context) {
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

func (w *OutboxWorker) drain(ctx context.Context) {
	records, err := w.outbox.FetchUnpublished(ctx, w.batch)
	if err != nil {
		w.logger.ErrorContext(ctx, "outbox fetch failed",
			"module", "events.outbox",
			"layer", "adapter",
			"operation", "fetch",
			"outcome", "failure",
			"error", err.Error(),
		)
		return
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		if err := w.publisher.Publish(ctx, rec.EventType, rec.Payload, rec.PartitionKey); err != nil {
			w.logger.ErrorContext(ctx, "outbox publish failed",
				"module", "events.outbox",
				"layer", "adapter",
				"operation", "publish",
				"outcome", "failure",
				"outbox_id", rec.OutboxID.String(),
				"event_type", rec.EventType,
				"error", err.Error(),
			)
			if markErr := w.outbox.MarkFailed(ctx, rec.OutboxID, err.Error(), time.Now().UTC()); markErr != nil {
				w.logger.ErrorContext(ctx, "outbox mark failed errored",
					"module", "events.outbox",
					"layer", "adapter",
					"operation", "mark_failed",
					"outcome", "failure",
					"outbox_id", rec.OutboxID.String(),
					"error", markErr.Error(),
				)
			}
			continue
		}
		if err := w.outbox.MarkPublished(ctx, rec.OutboxID, time.Now().UTC()); err != nil {
			w.logger.ErrorContext(ctx, "outbox mark published errored",
				"module", "events.outbox",
				"layer", "adapter",
				"operation", "mark_published",
				"outcome", "failure",
				"outbox_id", rec.OutboxID.String(),
				"error", err.Error(),
			)
		}
	}
}
