package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

func (s *Service) CreatePackage(ctx context.Context, claims ports.AuthClaims, req CreatePackageRequest) (domain.Package, error) {
	authorID, err := callerID(claims)
	if err != nil {
		return domain.Package{}, err
	}
	if err := domain.ValidateSlug(req.Slug); err != nil {
		return domain.Package{}, err
	}
	if err := domain.ValidateVersion(req.Version); err != nil {
		return domain.Package{}, err
	}
	if err := domain.ValidateDisplayName(req.DisplayName); err != nil {
		return domain.Package{}, err
	}
	if err := domain.ValidatePrice(req.PriceUsd); err != nil {
		return domain.Package{}, err
	}
	if err := domain.ValidateRequiredTier(req.RequiredTier); err != nil {
		return domain.Package{}, err
	}

	return s.packages.Create(ctx, ports.CreatePackageParams{
		Slug:         domain.NormalizeSlug(req.Slug),
		Version:      req.Version,
		DisplayName:  req.DisplayName,
		Description:  req.Description,
		Category:     req.Category,
		Maturity:     req.Maturity,
		Tags:         req.Tags,
		AuthorUserID: authorID,
		PriceUsd:     req.PriceUsd,
		License:      req.License,
		RequiredTier: req.RequiredTier,
		CreatedAt:    s.nowFn(),
	})
}

func (s *Service) UpdatePackage(ctx context.Context, claims ports.AuthClaims, packageRef string, req UpdatePackageRequest) (domain.Package, error) {
	caller, err := callerID(claims)
	if err != nil {
		return domain.Package{}, err
	}
	pkg, err := s.packages.GetBySlugOrID(ctx, packageRef)
	if err != nil {
		return domain.Package{}, err
	}
	if pkg.AuthorUserID != caller && !claims.Admin() {
		return domain.Package{}, fmt.Errorf("%w: only the package author may update it", domain.ErrForbidden)
	}
	if req.Version != nil {
		if err := domain.ValidateVersion(*req.Version); err != nil {
			return domain.Package{}, err
		}
	}
	if req.DisplayName != nil {
		if err := domain.ValidateDisplayName(*req.DisplayName); err != nil {
			return domain.Package{}, err
		}
	}
	if req.PriceUsd != nil {
		if err := domain.ValidatePrice(*req.PriceUsd); err != nil {
			return domain.Package{}, err
		}
	}
	if req.RequiredTier != nil {
		if err := domain.ValidateRequiredTier(*req.RequiredTier); err != nil {
			return domain.Package{}, err
		}
	}

	updated, err := s.packages.Update(ctx, ports.UpdatePackageParams{
		PackageID:    pkg.ID,
		DisplayName:  req.DisplayName,
		Description:  req.Description,
		Category:     req.Category,
		Maturity:     req.Maturity,
		Tags:         req.Tags,
		PriceUsd:     req.PriceUsd,
		License:      req.License,
		RequiredTier: req.RequiredTier,
		Version:      req.Version,
		UpdatedAt:    s.nowFn(),
	})
	if err != nil {
		return domain.Package{}, err
	}
	s.invalidatePackage(ctx, updated)
	return updated, nil
}

// GetPackage reads through the cache.
func (s *Service) GetPackage(ctx context.Context, packageRef string) (domain.Package, error) {
	key := "marketplace:pkg:" + domain.NormalizeSlug(packageRef)
	if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
		var pkg domain.Package
		if err := json.Unmarshal([]byte(cached), &pkg); err == nil {
			return pkg, nil
		}
	}

	pkg, err := s.packages.GetBySlugOrID(ctx, packageRef)
	if err != nil {
		return domain.Package{}, err
	}
	if raw, err := json.Marshal(pkg); err == nil {
		_ = s.cache.Set(ctx, key, string(raw), s.cfg.PackageCacheTTL)
	}
	return pkg, nil
}

func (s *Service) SearchPackages(ctx context.Context, req SearchPackagesRequest) (SearchPackagesResponse, error) {
	limit, offset, err := clampPagination(req.Limit, req.Offset)
	if err != nil {
		return SearchPackagesResponse{}, err
	}
	sort := ports.SearchSort(req.Sort)
	switch sort {
	case "":
		sort = ports.SortPopularity
	case ports.SortPopularity, ports.SortRating, ports.SortRecent, ports.SortName:
	default:
		return SearchPackagesResponse{}, fmt.Errorf("%w: sort must be one of popularity, rating, recent, name", domain.ErrInvalidInput)
	}
	params := ports.SearchPackagesParams{
		Query:       req.Query,
		Category:    req.Category,
		License:     req.License,
		Maturity:    req.Maturity,
		Tags:        req.Tags,
		MinRating:   req.MinRating,
		MaxPriceUsd: req.MaxPriceUsd,
		Sort:        sort,
		Limit:       limit,
		Offset:      offset,
	}

	// Search results are cached on a short TTL only; mutations do not chase
	// every parameter combination.
	key := "marketplace:search:" + hashRequest(params)
	if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
		var resp SearchPackagesResponse
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			return resp, nil
		}
	}

	result, err := s.packages.Search(ctx, params)
	if err != nil {
		return SearchPackagesResponse{}, err
	}
	resp := SearchPackagesResponse{Items: result.Items, Total: result.Total}
	if resp.Items == nil {
		resp.Items = []domain.Package{}
	}
	if raw, err := json.Marshal(resp); err == nil {
		_ = s.cache.Set(ctx, key, string(raw), s.cfg.SearchCacheTTL)
	}
	return resp, nil
}

func (s *Service) RatePackage(ctx context.Context, claims ports.AuthClaims, packageRef string, req RatePackageRequest) (domain.Package, error) {
	if _, err := callerID(claims); err != nil {
		return domain.Package{}, err
	}
	if err := domain.ValidateRating(req.Rating); err != nil {
		return domain.Package{}, err
	}
	pkg, err := s.packages.GetBySlugOrID(ctx, packageRef)
	if err != nil {
		return domain.Package{}, err
	}
	rated, err := s.packages.AddRating(ctx, pkg.ID, req.Rating, s.nowFn())
	if err != nil {
		return domain.Package{}, err
	}
	s.invalidatePackage(ctx, rated)
	return rated, nil
}

// AdminSetPackageStatus bans or archives a package. Existing installations
// are preserved; only new installs are refused.
func (s *Service) AdminSetPackageStatus(ctx context.Context, claims ports.AuthClaims, packageRef string, status domain.PackageStatus) error {
	if !claims.Admin() {
		return fmt.Errorf("%w: admin role required", domain.ErrForbidden)
	}
	switch status {
	case domain.PackageStatusBanned, domain.PackageStatusArchived, domain.PackageStatusActive:
	default:
		return fmt.Errorf("%w: unknown package status %q", domain.ErrInvalidInput, status)
	}
	pkg, err := s.packages.GetBySlugOrID(ctx, packageRef)
	if err != nil {
		return err
	}
	if err := s.packages.SetStatus(ctx, pkg.ID, status, s.nowFn()); err != nil {
		return err
	}
	s.invalidatePackage(ctx, pkg)
	return nil
}
