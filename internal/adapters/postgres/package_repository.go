package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
	"gorm.io/gorm"
)

type packageRepository struct {
	db *gorm.DB
}

func (r *packageRepository) Create(ctx context.Context, params ports.CreatePackageParams) (domain.Package, error) {
	rec := packageModel{
		Slug:         params.Slug,
		Version:      params.Version,
		DisplayName:  params.DisplayName,
		Description:  params.Description,
		Category:     params.Category,
		Maturity:     params.Maturity,
		Tags:         encodeTags(params.Tags),
		AuthorUserID: params.AuthorUserID,
		PriceUsd:     params.PriceUsd,
		License:      params.License,
		RequiredTier: params.RequiredTier,
		Status:       string(domain.PackageStatusActive),
		CreatedAtMs:  params.CreatedAt.UnixMilli(),
		UpdatedAtMs:  params.CreatedAt.UnixMilli(),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Package{}, fmt.Errorf("%w: slug %q is already taken", domain.ErrConflict, params.Slug)
		}
		return domain.Package{}, err
	}
	return toDomainPackage(rec), nil
}

func (r *packageRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Package, error) {
	var rec packageModel
	if err := r.db.WithContext(ctx).Where("package_id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Package{}, domain.ErrNotFound
		}
		return domain.Package{}, err
	}
	return toDomainPackage(rec), nil
}

func (r *packageRepository) GetBySlug(ctx context.Context, slug string) (domain.Package, error) {
	var rec packageModel
	if err := r.db.WithContext(ctx).Where("slug = ?", domain.NormalizeSlug(slug)).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Package{}, domain.ErrNotFound
		}
		return domain.Package{}, err
	}
	return toDomainPackage(rec), nil
}

func (r *packageRepository) GetBySlugOrID(ctx context.Context, ref string) (domain.Package, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return r.GetByID(ctx, id)
	}
	return r.GetBySlug(ctx, ref)
}

func (r *packageRepository) Update(ctx context.Context, params ports.UpdatePackageParams) (domain.Package, error) {
	updates := map[string]any{
		"updated_at_ms": params.UpdatedAt.UnixMilli(),
	}
	if params.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*params.DisplayName)
	}
	if params.Description != nil {
		updates["description"] = *params.Description
	}
	if params.Category != nil {
		updates["category"] = *params.Category
	}
	if params.Maturity != nil {
		updates["maturity"] = *params.Maturity
	}
	if params.Tags != nil {
		updates["tags"] = encodeTags(params.Tags)
	}
	if params.PriceUsd != nil {
		updates["price_usd"] = *params.PriceUsd
	}
	if params.License != nil {
		updates["license"] = *params.License
	}
	if params.RequiredTier != nil {
		updates["required_tier"] = *params.RequiredTier
	}
	if params.Version != nil {
		updates["version"] = *params.Version
	}

	res := r.db.WithContext(ctx).Model(&packageModel{}).Where("package_id = ?", params.PackageID).Updates(updates)
	if res.Error != nil {
		return domain.Package{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Package{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, params.PackageID)
}

func (r *packageRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.PackageStatus, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&packageModel{}).Where("package_id = ?", id).Updates(map[string]any{
		"status":        string(status),
		"updated_at_ms": at.UnixMilli(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *packageRepository) AddRating(ctx context.Context, id uuid.UUID, value int, at time.Time) (domain.Package, error) {
	res := r.db.WithContext(ctx).Model(&packageModel{}).Where("package_id = ?", id).Updates(map[string]any{
		"rating_sum":    gorm.Expr("rating_sum + ?", value),
		"rating_count":  gorm.Expr("rating_count + 1"),
		"updated_at_ms": at.UnixMilli(),
	})
	if res.Error != nil {
		return domain.Package{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Package{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *packageRepository) Search(ctx context.Context, params ports.SearchPackagesParams) (ports.SearchPackagesResult, error) {
	q := r.db.WithContext(ctx).Model(&packageModel{}).Where("status = ?", string(domain.PackageStatusActive))

	if params.Query != "" {
		term := strings.ToLower(strings.TrimSpace(params.Query))
		needle := "%" + term + "%"
		q = q.Where(
			"lower(display_name) LIKE ? OR lower(description) LIKE ? OR tags::jsonb @> ?",
			needle, needle, encodeTags([]string{term}),
		)
	}
	if params.Category != "" {
		q = q.Where("category = ?", params.Category)
	}
	if params.License != "" {
		q = q.Where("license = ?", params.License)
	}
	if params.Maturity != "" {
		q = q.Where("maturity = ?", params.Maturity)
	}
	for _, tag := range params.Tags {
		q = q.Where("tags::jsonb @> ?", encodeTags([]string{tag}))
	}
	if params.MinRating > 0 {
		q = q.Where("rating_count > 0 AND rating_sum::float / rating_count >= ?", params.MinRating)
	}
	if params.MaxPriceUsd != nil {
		q = q.Where("price_usd <= ?", *params.MaxPriceUsd)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return ports.SearchPackagesResult{}, err
	}

	switch params.Sort {
	case ports.SortRating:
		q = q.Order("CASE WHEN rating_count = 0 THEN 0 ELSE rating_sum::float / rating_count END DESC")
	case ports.SortRecent:
		q = q.Order("created_at_ms DESC")
	case ports.SortName:
		q = q.Order("display_name ASC")
	default:
		q = q.Order("install_count DESC")
	}

	var rows []packageModel
	if err := q.Limit(params.Limit).Offset(params.Offset).Find(&rows).Error; err != nil {
		return ports.SearchPackagesResult{}, err
	}
	items := make([]domain.Package, 0, len(rows))
	for _, row := range rows {
		items = append(items, toDomainPackage(row))
	}
	return ports.SearchPackagesResult{Items: items, Total: total}, nil
}

var _ ports.PackageRepository = (*packageRepository)(nil)
