package application

import (
	"context"
	"fmt"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

// CreateMint turns a package into a limited (or open) edition. Rarities above
// common require a graduation attestation from the curation pipeline.
func (s *Service) CreateMint(ctx context.Context, claims ports.AuthClaims, req CreateMintRequest) (domain.Mint, error) {
	caller, err := callerID(claims)
	if err != nil {
		return domain.Mint{}, err
	}
	rarity := domain.Rarity(req.Rarity)
	if err := domain.ValidateRarity(rarity); err != nil {
		return domain.Mint{}, err
	}
	if err := domain.ValidateRoyaltyPercent(req.CreatorRoyaltyPercent); err != nil {
		return domain.Mint{}, err
	}
	if err := domain.ValidateMaxEditions(req.MaxEditions); err != nil {
		return domain.Mint{}, err
	}
	if rarity != domain.RarityCommon && req.GraduationAttestation == "" {
		return domain.Mint{}, fmt.Errorf("%w for rarity %q", domain.ErrAttestationRequired, rarity)
	}

	pkg, err := s.packages.GetBySlugOrID(ctx, req.PackageRef)
	if err != nil {
		return domain.Mint{}, err
	}
	if pkg.AuthorUserID != caller {
		return domain.Mint{}, fmt.Errorf("%w: only the package author may mint it", domain.ErrForbidden)
	}

	return s.mints.Create(ctx, ports.CreateMintParams{
		PackageID:             pkg.ID,
		Rarity:                rarity,
		MaxEditions:           req.MaxEditions,
		CreatorID:             caller,
		CreatorRoyaltyPercent: req.CreatorRoyaltyPercent,
		CreatedAt:             s.nowFn(),
	})
}

func (s *Service) GetMint(ctx context.Context, packageRef string) (domain.Mint, error) {
	pkg, err := s.packages.GetBySlugOrID(ctx, packageRef)
	if err != nil {
		return domain.Mint{}, err
	}
	return s.mints.GetByPackageID(ctx, pkg.ID)
}
