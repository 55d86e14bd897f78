package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	db *gorm.DB
}

func (r *subscriptionRepository) GetActiveByUser(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	var rec subscriptionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(domain.SubscriptionStatusActive)).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Subscription{}, domain.ErrNotFound
		}
		return domain.Subscription{}, err
	}
	return toDomainSubscription(rec), nil
}

// Upsert reconciles the user's single subscription row with a billing event.
// A new billing period resets calls_used; a same-period event only updates
// tier, status and limit.
func (r *subscriptionRepository) Upsert(ctx context.Context, params ports.UpsertSubscriptionParams) (domain.Subscription, error) {
	var rec subscriptionModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", params.UserID).
			Take(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = subscriptionModel{
				SubscriptionID: uuid.New(),
				UserID:         params.UserID,
				Tier:           string(params.Tier),
				Status:         string(params.Status),
				CallsUsed:      0,
				CallsLimit:     params.CallsLimit,
				PeriodStartMs:  params.PeriodStart.UnixMilli(),
				PeriodEndMs:    params.PeriodEnd.UnixMilli(),
			}
			return tx.Create(&rec).Error
		case err != nil:
			return err
		}

		updates := map[string]any{
			"tier":            string(params.Tier),
			"status":          string(params.Status),
			"calls_limit":     params.CallsLimit,
			"period_start_ms": params.PeriodStart.UnixMilli(),
			"period_end_ms":   params.PeriodEnd.UnixMilli(),
		}
		if params.PeriodStart.UnixMilli() != rec.PeriodStartMs {
			updates["calls_used"] = 0
		}
		if err := tx.Model(&subscriptionModel{}).
			Where("subscription_id = ?", rec.SubscriptionID).
			Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("subscription_id = ?", rec.SubscriptionID).Take(&rec).Error
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return toDomainSubscription(rec), nil
}

func (r *subscriptionRepository) Cancel(ctx context.Context, userID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&subscriptionModel{}).
		Where("user_id = ? AND status <> ?", userID, string(domain.SubscriptionStatusCanceled)).
		Updates(map[string]any{
			"status":        string(domain.SubscriptionStatusCanceled),
			"period_end_ms": at.UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementCallsUsed is deliberately an unconditional expression update.
// Over-limit detection happens in the quota check before the call; a burst of
// concurrent included calls may push the counter at most slightly past the
// limit, which the accounting model accepts.
func (r *subscriptionRepository) IncrementCallsUsed(ctx context.Context, subscriptionID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&subscriptionModel{}).
		Where("subscription_id = ?", subscriptionID).
		UpdateColumn("calls_used", gorm.Expr("calls_used + 1")).Error
}

var _ ports.SubscriptionRepository = (*subscriptionRepository)(nil)
