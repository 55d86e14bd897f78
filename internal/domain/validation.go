package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

func NormalizeSlug(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func ValidateSlug(v string) error {
	if !slugPattern.MatchString(NormalizeSlug(v)) {
		return fmt.Errorf("%w: slug must match ^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$", ErrInvalidInput)
	}
	return nil
}

func ValidateVersion(v string) error {
	if !versionPattern.MatchString(strings.TrimSpace(v)) {
		return fmt.Errorf("%w: version must be semver major.minor.patch", ErrInvalidInput)
	}
	return nil
}

func ValidateDisplayName(v string) error {
	trimmed := strings.TrimSpace(v)
	if len(trimmed) < 3 || len(trimmed) > 80 {
		return fmt.Errorf("%w: display_name must be 3-80 chars", ErrInvalidInput)
	}
	return nil
}

func ValidatePrice(v decimal.Decimal) error {
	if v.IsNegative() {
		return fmt.Errorf("%w: price_usd must be >= 0", ErrInvalidInput)
	}
	if v.Exponent() < -4 {
		return fmt.Errorf("%w: price_usd supports at most 4 decimal places", ErrInvalidInput)
	}
	return nil
}

func ValidateRequiredTier(v int) error {
	if v < 0 || v > 3 {
		return fmt.Errorf("%w: required_tier must be in [0,3]", ErrInvalidInput)
	}
	return nil
}

func ValidateRarity(v Rarity) error {
	switch v {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return nil
	default:
		return fmt.Errorf("%w: rarity must be one of common, rare, epic, legendary", ErrInvalidInput)
	}
}

func ValidateRoyaltyPercent(v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: creator_royalty_percent must be in [0,100]", ErrInvalidInput)
	}
	return nil
}

func ValidateMaxEditions(v *int) error {
	if v != nil && *v < 1 {
		return fmt.Errorf("%w: max_editions must be >= 1 or null", ErrInvalidInput)
	}
	return nil
}

func ValidateRating(v int) error {
	if v < 1 || v > 5 {
		return fmt.Errorf("%w: rating must be in [1,5]", ErrInvalidInput)
	}
	return nil
}
