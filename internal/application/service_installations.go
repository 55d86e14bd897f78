package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

type installationEventData struct {
	InstallationID string `json:"installation_id"`
	PackageID      string `json:"package_id"`
	UserID         string `json:"user_id"`
	Version        string `json:"version"`
}

// Install runs the admission transaction and, on success, emits a
// package.installed event through the outbox.
func (s *Service) Install(ctx context.Context, claims ports.AuthClaims, req InstallRequest) (domain.Installation, error) {
	caller, err := callerID(claims)
	if err != nil {
		return domain.Installation{}, err
	}
	if req.PackageRef == "" {
		return domain.Installation{}, fmt.Errorf("%w: package is required", domain.ErrInvalidInput)
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	inst, err := s.installations.Install(ctx, ports.InstallParams{
		PackageRef: req.PackageRef,
		UserID:     caller,
		UserTier:   domain.ParseTier(claims.Tier),
		AgentID:    req.AgentID,
		Enabled:    enabled,
		Config:     req.Config,
		Now:        s.nowFn(),
	})
	if err != nil {
		return domain.Installation{}, err
	}

	s.enqueueEvent(ctx, "package.installed", inst.PackageID.String(), installationEventData{
		InstallationID: inst.ID.String(),
		PackageID:      inst.PackageID.String(),
		UserID:         caller.String(),
		Version:        inst.Version,
	})
	if pkg, err := s.packages.GetByID(ctx, inst.PackageID); err == nil {
		s.invalidatePackage(ctx, pkg)
	}
	return inst, nil
}

// Uninstall flips the installation to uninstalled. Minted editions are
// permanent, so the mint counter is untouched.
func (s *Service) Uninstall(ctx context.Context, claims ports.AuthClaims, installationID uuid.UUID) error {
	caller, err := callerID(claims)
	if err != nil {
		return err
	}
	inst, err := s.installations.GetByID(ctx, installationID)
	if err != nil {
		return err
	}
	if inst.UserID != caller && !claims.Admin() {
		return fmt.Errorf("%w: installation belongs to another user", domain.ErrForbidden)
	}
	if inst.Status != domain.InstallationStatusActive {
		return fmt.Errorf("%w: installation is not active", domain.ErrNotFound)
	}
	if err := s.installations.Uninstall(ctx, installationID, s.nowFn()); err != nil {
		return err
	}

	s.enqueueEvent(ctx, "package.uninstalled", inst.PackageID.String(), installationEventData{
		InstallationID: inst.ID.String(),
		PackageID:      inst.PackageID.String(),
		UserID:         inst.UserID.String(),
		Version:        inst.Version,
	})
	if pkg, err := s.packages.GetByID(ctx, inst.PackageID); err == nil {
		s.invalidatePackage(ctx, pkg)
	}
	return nil
}

func (s *Service) ListInstallations(ctx context.Context, claims ports.AuthClaims, limit, offset int) ([]domain.Installation, error) {
	caller, err := callerID(claims)
	if err != nil {
		return nil, err
	}
	limit, offset, err = clampPagination(limit, offset)
	if err != nil {
		return nil, err
	}
	items, err := s.installations.ListByUser(ctx, caller, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Installation{}
	}
	return items, nil
}
