package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
	"gorm.io/gorm"
)

type mintRepository struct {
	db *gorm.DB
}

func (r *mintRepository) Create(ctx context.Context, params ports.CreateMintParams) (domain.Mint, error) {
	rec := mintModel{
		PackageID:             params.PackageID,
		Rarity:                string(params.Rarity),
		MaxEditions:           params.MaxEditions,
		MintedCount:           0,
		CreatorID:             params.CreatorID,
		CreatorRoyaltyPercent: params.CreatorRoyaltyPercent,
		CreatedAtMs:           params.CreatedAt.UnixMilli(),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Mint{}, fmt.Errorf("%w: package is already minted", domain.ErrConflict)
		}
		return domain.Mint{}, err
	}
	return toDomainMint(rec), nil
}

func (r *mintRepository) GetByPackageID(ctx context.Context, packageID uuid.UUID) (domain.Mint, error) {
	var rec mintModel
	if err := r.db.WithContext(ctx).Where("package_id = ?", packageID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Mint{}, domain.ErrNotFound
		}
		return domain.Mint{}, err
	}
	return toDomainMint(rec), nil
}

var _ ports.MintRepository = (*mintRepository)(nil)
