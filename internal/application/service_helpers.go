package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

func callerID(claims ports.AuthClaims) (uuid.UUID, error) {
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, domain.ErrUnauthorized
	}
	return id, nil
}

func hashRequest(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func contentHash(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

func (s *Service) packageCacheKeys(pkg domain.Package) []string {
	return []string{
		"marketplace:pkg:" + pkg.ID.String(),
		"marketplace:pkg:" + pkg.Slug,
	}
}

func (s *Service) invalidatePackage(ctx context.Context, pkg domain.Package) {
	if err := s.cache.Delete(ctx, s.packageCacheKeys(pkg)...); err != nil {
		s.logger.WarnContext(ctx, "package cache invalidation failed",
			"module", "application",
			"layer", "service",
			"operation", "cache_invalidate",
			"outcome", "failure",
			"package_id", pkg.ID.String(),
			"error", err.Error(),
		)
	}
}

// enqueueEvent writes an outbox row in the standard event envelope. Outbox
// failures are logged, not surfaced: the state change already committed.
func (s *Service) enqueueEvent(ctx context.Context, eventType, partitionKey string, data any) {
	occurredAt := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"event_id":       uuid.NewString(),
		"event_type":     eventType,
		"occurred_at":    occurredAt.Format(time.RFC3339),
		"source_service": s.cfg.ServiceName,
		"schema_version": "1.0",
		"partition_key":  partitionKey,
		"data":           data,
	})
	err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      payload,
		OccurredAt:   occurredAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "outbox enqueue failed",
			"module", "application",
			"layer", "service",
			"operation", "enqueue_event",
			"outcome", "failure",
			"event_type", eventType,
			"error", err.Error(),
		)
	}
}

func isCryptoAuthFailure(err error) bool {
	return errors.Is(err, domain.ErrCryptoAuthFailure)
}

func clampPagination(limit, offset int) (int, int, error) {
	if limit == 0 {
		limit = 20
	}
	if limit < 1 || limit > 100 {
		return 0, 0, fmt.Errorf("%w: limit must be in [1,100]", domain.ErrInvalidInput)
	}
	if offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset must be >= 0", domain.ErrInvalidInput)
	}
	return limit, offset, nil
}
