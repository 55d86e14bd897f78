package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

// HandleSubscriptionUpdated ingests a billing.subscription_updated event and
// mirrors the billing system's subscription state. Events are deduplicated by
// event_id so broker redelivery is harmless.
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, payload []byte) error {
	env, data, err := s.decodeSubscriptionEvent(payload)
	if err != nil {
		return err
	}
	dup, err := s.eventDedup.IsDuplicate(ctx, env.EventID, s.nowFn())
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	userID, err := uuid.Parse(data.UserID)
	if err != nil {
		return fmt.Errorf("%w: event user_id is not a uuid", domain.ErrInvalidInput)
	}
	periodStart, err := time.Parse(time.RFC3339, data.PeriodStart)
	if err != nil {
		return fmt.Errorf("%w: event period_start: %v", domain.ErrInvalidInput, err)
	}
	periodEnd, err := time.Parse(time.RFC3339, data.PeriodEnd)
	if err != nil {
		return fmt.Errorf("%w: event period_end: %v", domain.ErrInvalidInput, err)
	}

	tier := domain.ParseTier(data.Tier)
	callsLimit := s.cfg.TierCallLimits[tier]
	if data.CallsLimit != nil {
		callsLimit = *data.CallsLimit
	}
	if _, err := s.subscriptions.Upsert(ctx, ports.UpsertSubscriptionParams{
		UserID:      userID,
		Tier:        tier,
		Status:      domain.SubscriptionStatus(data.Status),
		CallsLimit:  callsLimit,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}); err != nil {
		return err
	}
	return s.eventDedup.MarkProcessed(ctx, env.EventID, env.EventType, s.nowFn().Add(s.cfg.EventDedupTTL))
}

// HandleSubscriptionCanceled ends the user's active subscription.
func (s *Service) HandleSubscriptionCanceled(ctx context.Context, payload []byte) error {
	env, data, err := s.decodeSubscriptionEvent(payload)
	if err != nil {
		return err
	}
	dup, err := s.eventDedup.IsDuplicate(ctx, env.EventID, s.nowFn())
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	userID, err := uuid.Parse(data.UserID)
	if err != nil {
		return fmt.Errorf("%w: event user_id is not a uuid", domain.ErrInvalidInput)
	}
	if err := s.subscriptions.Cancel(ctx, userID, s.nowFn()); err != nil {
		return err
	}
	return s.eventDedup.MarkProcessed(ctx, env.EventID, env.EventType, s.nowFn().Add(s.cfg.EventDedupTTL))
}

func (s *Service) decodeSubscriptionEvent(payload []byte) (inboundEventEnvelope, subscriptionEventData, error) {
	var env inboundEventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return inboundEventEnvelope{}, subscriptionEventData{}, fmt.Errorf("%w: malformed event payload", domain.ErrInvalidInput)
	}
	if env.EventID == "" {
		return inboundEventEnvelope{}, subscriptionEventData{}, fmt.Errorf("%w: event_id is required", domain.ErrInvalidInput)
	}
	return env, env.Data, nil
}
