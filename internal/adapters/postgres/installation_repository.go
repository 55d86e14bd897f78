package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const installRetryAttempts = 3

type installationRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Install runs the whole admission algorithm in one transaction. The mint
// row lock taken by the conditional UPDATE serializes racers for the last
// edition; the partial unique index on active installations backstops the
// duplicate check.
func (r *installationRepository) Install(ctx context.Context, params ports.InstallParams) (domain.Installation, error) {
	var out domain.Installation
	var err error
	for attempt := 0; attempt < installRetryAttempts; attempt++ {
		out, err = r.installOnce(ctx, params)
		if err == nil || !isRetryableTxError(err) {
			return out, err
		}
		jitter := time.Duration(rand.Intn(50)+10) * time.Millisecond
		select {
		case <-ctx.Done():
			return domain.Installation{}, ctx.Err()
		case <-time.After(jitter):
		}
	}
	return domain.Installation{}, fmt.Errorf("%w: install transaction kept deadlocking: %v", domain.ErrStorageUnavailable, err)
}

func (r *installationRepository) installOnce(ctx context.Context, params ports.InstallParams) (domain.Installation, error) {
	var rec installationModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pkg packageModel
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		if id, parseErr := uuid.Parse(params.PackageRef); parseErr == nil {
			q = q.Where("package_id = ?", id)
		} else {
			q = q.Where("slug = ?", domain.NormalizeSlug(params.PackageRef))
		}
		if err := q.Take(&pkg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: package %q", domain.ErrNotFound, params.PackageRef)
			}
			return err
		}
		if pkg.Status != string(domain.PackageStatusActive) {
			return fmt.Errorf("%w: package %q", domain.ErrNotFound, params.PackageRef)
		}
		if pkg.RequiredTier > params.UserTier.Rank() {
			return domain.TierError{RequiredTier: pkg.RequiredTier, CurrentTier: params.UserTier}
		}

		var activeCount int64
		if err := tx.Model(&installationModel{}).
			Where("user_id = ? AND package_id = ? AND status = ?", params.UserID, pkg.PackageID, string(domain.InstallationStatusActive)).
			Count(&activeCount).Error; err != nil {
			return err
		}
		if activeCount > 0 {
			return domain.DuplicateInstallError{PackageSlug: pkg.Slug}
		}

		rec = installationModel{
			InstallationID: uuid.New(),
			PackageID:      pkg.PackageID,
			UserID:         params.UserID,
			AgentID:        params.AgentID,
			Version:        pkg.Version,
			Status:         string(domain.InstallationStatusActive),
			Enabled:        params.Enabled,
			Config:         encodeConfig(params.Config),
			InstalledAtMs:  params.Now.UnixMilli(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.DuplicateInstallError{PackageSlug: pkg.Slug}
			}
			return err
		}

		if err := tx.Model(&packageModel{}).
			Where("package_id = ?", pkg.PackageID).
			UpdateColumn("install_count", gorm.Expr("install_count + 1")).Error; err != nil {
			return err
		}

		var mint mintModel
		mintErr := tx.Where("package_id = ?", pkg.PackageID).Take(&mint).Error
		switch {
		case errors.Is(mintErr, gorm.ErrRecordNotFound):
			// Unminted package, nothing scarce to account for.
			return nil
		case mintErr != nil:
			return mintErr
		}

		res := tx.Model(&mintModel{}).
			Where("package_id = ? AND (max_editions IS NULL OR minted_count < max_editions)", pkg.PackageID).
			UpdateColumn("minted_count", gorm.Expr("minted_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Sold out. Mark the row failed rather than deleting it so the
			// user can see what happened and retry elsewhere.
			if err := tx.Model(&installationModel{}).
				Where("installation_id = ?", rec.InstallationID).
				Update("status", string(domain.InstallationStatusFailed)).Error; err != nil {
				return err
			}
			maxEditions := 0
			if mint.MaxEditions != nil {
				maxEditions = *mint.MaxEditions
			}
			return domain.EditionLimitError{Rarity: domain.Rarity(mint.Rarity), MaxEditions: maxEditions}
		}

		if pkg.PriceUsd.IsPositive() {
			royalty := royaltyLedgerModel{
				EntryID:          uuid.New(),
				PackageID:        pkg.PackageID,
				CreatorID:        mint.CreatorID,
				BuyerID:          params.UserID,
				InstallationID:   rec.InstallationID,
				GrossAmountUsd:   pkg.PriceUsd,
				RoyaltyAmountUsd: domain.RoyaltyAmount(pkg.PriceUsd, mint.CreatorRoyaltyPercent),
				RoyaltyPercent:   mint.CreatorRoyaltyPercent,
				CreatedAtMs:      params.Now.UnixMilli(),
			}
			if err := tx.Create(&royalty).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var editionErr domain.EditionLimitError
		if errors.As(err, &editionErr) {
			// The failed installation row was rolled back with the rest of
			// the transaction; persist it outside so retries are auditable.
			rec.Status = string(domain.InstallationStatusFailed)
			if createErr := r.db.WithContext(ctx).Create(&rec).Error; createErr != nil {
				r.logger.ErrorContext(ctx, "record failed installation attempt",
					"module", "postgres.installations",
					"layer", "adapter",
					"operation", "install",
					"outcome", "failure",
					"installation_id", rec.InstallationID.String(),
					"error", createErr.Error(),
				)
			}
		}
		return domain.Installation{}, err
	}
	return toDomainInstallation(rec), nil
}

func (r *installationRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Installation, error) {
	var rec installationModel
	if err := r.db.WithContext(ctx).Where("installation_id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Installation{}, domain.ErrNotFound
		}
		return domain.Installation{}, err
	}
	return toDomainInstallation(rec), nil
}

func (r *installationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Installation, error) {
	var rows []installationModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("installed_at_ms DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Installation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainInstallation(row))
	}
	return out, nil
}

// Uninstall flips status only. Minted editions are permanent; the mint
// counter is never decremented.
func (r *installationRepository) Uninstall(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&installationModel{}).
		Where("installation_id = ? AND status = ?", id, string(domain.InstallationStatusActive)).
		Updates(map[string]any{
			"status":            string(domain.InstallationStatusUninstalled),
			"uninstalled_at_ms": at.UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *installationRepository) CountActiveByPackage(ctx context.Context, packageID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&installationModel{}).
		Where("package_id = ? AND status = ?", packageID, string(domain.InstallationStatusActive)).
		Count(&count).Error
	return count, err
}

var _ ports.InstallationRepository = (*installationRepository)(nil)
