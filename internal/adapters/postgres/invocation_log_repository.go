package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type invocationLogRepository struct {
	db *gorm.DB
}

// Append serializes per package by locking the package row for the duration
// of the insert, so prev_hash always points at the immediately preceding
// entry. created_at milliseconds can tie under load; the serial seq column
// gives the chain its strict total order.
func (r *invocationLogRepository) Append(ctx context.Context, params ports.AppendInvocationParams) (domain.InvocationLogEntry, error) {
	var rec invocationLogModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pkg packageModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("package_id = ?", params.PackageID).
			Take(&pkg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		prevHash := domain.GenesisHash
		var last invocationLogModel
		err := tx.Where("package_id = ?", params.PackageID).
			Order("seq DESC").
			Take(&last).Error
		switch {
		case err == nil:
			prevHash = last.EventHash
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		rec = invocationLogModel{
			PackageID:      params.PackageID,
			CallerID:       params.CallerID,
			InferenceMs:    params.InferenceMs,
			ConclusionHash: params.ConclusionHash,
			PrevHash:       prevHash,
			EventHash:      domain.ChainEventHash(params.PackageID, params.CallerID, params.ConclusionHash, prevHash),
			CreatedAtMs:    params.CreatedAt.UnixMilli(),
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return domain.InvocationLogEntry{}, err
	}
	return toDomainInvocationEntry(rec), nil
}

func (r *invocationLogRepository) ListByPackage(ctx context.Context, packageID uuid.UUID, limit, offset int) ([]domain.InvocationLogEntry, error) {
	var rows []invocationLogModel
	if err := r.db.WithContext(ctx).
		Where("package_id = ?", packageID).
		Order("seq ASC").
		Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.InvocationLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainInvocationEntry(row))
	}
	return out, nil
}

var _ ports.InvocationLogRepository = (*invocationLogRepository)(nil)
