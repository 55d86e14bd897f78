package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
	"gorm.io/gorm"
)

// Ledger tables are append-only; these repositories expose no update or
// delete. Immutability is additionally enforced by triggers in the schema.

type usageLedgerRepository struct {
	db *gorm.DB
}

func (r *usageLedgerRepository) Append(ctx context.Context, params ports.AppendUsageParams) (domain.UsageLedgerEntry, error) {
	rec := usageLedgerModel{
		EntryID:           uuid.New(),
		UserID:            params.UserID,
		PackageID:         params.PackageID,
		SubscriptionID:    params.SubscriptionID,
		CostUsd:           params.CostUsd,
		CreatorRoyaltyUsd: params.CreatorRoyaltyUsd,
		IsOverage:         params.IsOverage,
		CreatedAtMs:       params.CreatedAt.UnixMilli(),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.UsageLedgerEntry{}, err
	}
	return toDomainUsageEntry(rec), nil
}

func (r *usageLedgerRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.UsageLedgerEntry, error) {
	var rows []usageLedgerModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_ms DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.UsageLedgerEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainUsageEntry(row))
	}
	return out, nil
}

var _ ports.UsageLedgerRepository = (*usageLedgerRepository)(nil)

type royaltyLedgerRepository struct {
	db *gorm.DB
}

func (r *royaltyLedgerRepository) ListByCreator(ctx context.Context, creatorID uuid.UUID, limit, offset int) ([]domain.RoyaltyLedgerEntry, error) {
	return r.list(ctx, "creator_id = ?", creatorID, limit, offset)
}

func (r *royaltyLedgerRepository) ListByPackage(ctx context.Context, packageID uuid.UUID, limit, offset int) ([]domain.RoyaltyLedgerEntry, error) {
	return r.list(ctx, "package_id = ?", packageID, limit, offset)
}

func (r *royaltyLedgerRepository) list(ctx context.Context, cond string, arg uuid.UUID, limit, offset int) ([]domain.RoyaltyLedgerEntry, error) {
	var rows []royaltyLedgerModel
	if err := r.db.WithContext(ctx).
		Where(cond, arg).
		Order("created_at_ms DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.RoyaltyLedgerEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainRoyaltyEntry(row))
	}
	return out, nil
}

var _ ports.RoyaltyLedgerRepository = (*royaltyLedgerRepository)(nil)
