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

type knowledgeRepository struct {
	db *gorm.DB
}

// UpsertActive retires the current active row and inserts the replacement in
// one transaction. Retired rows stay behind as evidence.
func (r *knowledgeRepository) UpsertActive(ctx context.Context, params ports.UpsertKnowledgeParams) (domain.EncryptedKnowledge, error) {
	var rec knowledgeModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev knowledgeModel
		version := 1
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("package_id = ? AND is_active", params.PackageID).
			Take(&prev).Error
		switch {
		case err == nil:
			version = prev.Version + 1
			if err := tx.Model(&knowledgeModel{}).
				Where("knowledge_id = ?", prev.KnowledgeID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		rec = knowledgeModel{
			KnowledgeID: uuid.New(),
			PackageID:   params.PackageID,
			WrappedDek:  params.WrappedDek,
			Ciphertext:  params.Ciphertext,
			ContentHash: params.ContentHash,
			Version:     version,
			IsActive:    true,
			CreatedAtMs: params.Now.UnixMilli(),
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return domain.EncryptedKnowledge{}, err
	}
	return toDomainKnowledge(rec), nil
}

func (r *knowledgeRepository) GetActiveByPackageID(ctx context.Context, packageID uuid.UUID) (domain.EncryptedKnowledge, error) {
	var rec knowledgeModel
	if err := r.db.WithContext(ctx).Where("package_id = ? AND is_active", packageID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EncryptedKnowledge{}, domain.ErrNotFound
		}
		return domain.EncryptedKnowledge{}, err
	}
	return toDomainKnowledge(rec), nil
}

var _ ports.KnowledgeRepository = (*knowledgeRepository)(nil)
