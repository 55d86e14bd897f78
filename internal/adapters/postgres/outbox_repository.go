package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/skillforge/marketplace/internal/ports"
	"gorm.io/gorm"
)

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	rec := outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(event.Payload),
		CreatedAtMs:  event.OccurredAt.UnixMilli(),
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *outboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("published_at_ms IS NULL").
		Order("created_at_ms ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ports.OutboxRecord{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      []byte(row.Payload),
			RetryCount:   row.RetryCount,
			PublishedAt:  msToTimePtr(row.PublishedAtMs),
			LastError:    row.LastError,
			LastErrorAt:  msToTimePtr(row.LastErrorAtMs),
			FirstSeenAt:  msToTime(row.CreatedAtMs),
		})
	}
	return out, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Update("published_at_ms", at.UnixMilli()).Error
}

func (r *outboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"retry_count":      gorm.Expr("retry_count + 1"),
			"last_error":       errMsg,
			"last_error_at_ms": at.UnixMilli(),
		}).Error
}

var _ ports.OutboxRepository = (*outboxRepository)(nil)

type eventDedupRepository struct {
	db *gorm.DB
}

func (r *eventDedupRepository) IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&eventDedupModel{}).
		Where("event_id = ? AND expires_at_ms > ?", eventID, now.UnixMilli()).
		Count(&count).Error
	return count > 0, err
}

func (r *eventDedupRepository) MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error {
	now := time.Now().UTC()
	rec := eventDedupModel{
		EventID:       eventID,
		EventType:     eventType,
		ProcessedAtMs: now.UnixMilli(),
		ExpiresAtMs:   expiresAt.UnixMilli(),
	}
	return r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Assign(map[string]any{
			"event_type":      eventType,
			"processed_at_ms": rec.ProcessedAtMs,
			"expires_at_ms":   rec.ExpiresAtMs,
		}).
		FirstOrCreate(&rec).Error
}

var _ ports.EventDedupRepository = (*eventDedupRepository)(nil)
