package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("conflict")
	ErrCryptoAuthFailure     = errors.New("crypto auth failure")
	ErrReasonerUnavailable   = errors.New("reasoner unavailable")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrAttestationRequired rejects a capped-rarity mint created without a
	// graduation attestation.
	ErrAttestationRequired = errors.New("graduation attestation required")
)

// EditionLimitError is returned when a capped mint has no editions left.
type EditionLimitError struct {
	Rarity      Rarity
	MaxEditions int
}

func (e EditionLimitError) Error() string {
	return fmt.Sprintf("edition limit reached: %s mint capped at %d editions", e.Rarity, e.MaxEditions)
}

func (e EditionLimitError) Unwrap() error { return ErrConflict }

// TierError is returned when the caller's tier does not reach the package's
// required tier.
type TierError struct {
	RequiredTier int
	CurrentTier  Tier
}

func (e TierError) Error() string {
	return fmt.Sprintf("tier insufficient: requires tier %d, caller is %q", e.RequiredTier, e.CurrentTier)
}

func (e TierError) Unwrap() error { return ErrForbidden }

// DuplicateInstallError marks a second active install of the same package by
// the same user.
type DuplicateInstallError struct {
	PackageSlug string
}

func (e DuplicateInstallError) Error() string {
	return fmt.Sprintf("package %q is already installed", e.PackageSlug)
}

func (e DuplicateInstallError) Unwrap() error { return ErrConflict }
