package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/skillforge/marketplace/internal/domain"
)

func TestInstallStampedeNeverOversells(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "limited-skill", "0")
	env.mustMint(t, author, pkg, "rare", intPtr(10), "10")

	const installers = 20
	var wg sync.WaitGroup
	errs := make([]error, installers)
	for i := 0; i < installers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.service.Install(context.Background(), userClaims(uuid.New(), "pro"), InstallRequest{
				PackageRef: pkg.Slug,
			})
		}(i)
	}
	wg.Wait()

	var succeeded, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			var limitErr domain.EditionLimitError
			if !errors.As(err, &limitErr) {
				t.Fatalf("unexpected install error: %v", err)
			}
			if limitErr.MaxEditions != 10 || limitErr.Rarity != domain.RarityRare {
				t.Fatalf("unexpected edition limit details: %+v", limitErr)
			}
			limited++
		}
	}
	if succeeded != 10 || limited != 10 {
		t.Fatalf("expected 10 successes and 10 edition-limit failures, got %d/%d", succeeded, limited)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if env.store.mints[pkg.ID].MintedCount != 10 {
		t.Fatalf("expected minted count 10, got %d", env.store.mints[pkg.ID].MintedCount)
	}
	var active int
	for _, inst := range env.store.installs {
		if inst.PackageID == pkg.ID && inst.Status == domain.InstallationStatusActive {
			active++
		}
	}
	if active != 10 {
		t.Fatalf("expected 10 active installations, got %d", active)
	}
}

func TestInstallLastSlotRace(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "last-slot", "0")
	env.mustMint(t, author, pkg, "legendary", intPtr(1), "0")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.service.Install(context.Background(), userClaims(uuid.New(), "epic"), InstallRequest{
				PackageRef: pkg.Slug,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner for the last edition, got %d", winners)
	}
}

func TestInstallUnlimitedMint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "open-edition", "0")
	env.mustMint(t, author, pkg, "common", nil, "0")

	for i := 0; i < 25; i++ {
		if _, err := env.service.Install(context.Background(), userClaims(uuid.New(), "free"), InstallRequest{
			PackageRef: pkg.Slug,
		}); err != nil {
			t.Fatalf("install %d: %v", i, err)
		}
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if env.store.mints[pkg.ID].MintedCount != 25 {
		t.Fatalf("expected minted count 25, got %d", env.store.mints[pkg.ID].MintedCount)
	}
}

func TestInstallDuplicateRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "once-only", "0")
	user := uuid.New()

	if _, err := env.service.Install(context.Background(), userClaims(user, "free"), InstallRequest{PackageRef: pkg.Slug}); err != nil {
		t.Fatalf("first install: %v", err)
	}
	_, err := env.service.Install(context.Background(), userClaims(user, "free"), InstallRequest{PackageRef: pkg.Slug})
	var dup domain.DuplicateInstallError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateInstallError, got %v", err)
	}
	if dup.PackageSlug != pkg.Slug {
		t.Fatalf("unexpected slug in duplicate error: %q", dup.PackageSlug)
	}
}

func TestInstallAfterUninstallAllowed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "reinstallable", "0")
	user := uuid.New()

	inst, err := env.service.Install(context.Background(), userClaims(user, "free"), InstallRequest{PackageRef: pkg.Slug})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := env.service.Uninstall(context.Background(), userClaims(user, "free"), inst.ID); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if _, err := env.service.Install(context.Background(), userClaims(user, "free"), InstallRequest{PackageRef: pkg.Slug}); err != nil {
		t.Fatalf("reinstall after uninstall: %v", err)
	}
}

func TestInstallTierGate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg, err := env.service.CreatePackage(context.Background(), authorClaims(author), CreatePackageRequest{
		Slug:         "epic-only",
		Version:      "1.0.0",
		DisplayName:  "Epic Only Skill",
		PriceUsd:     decimalZero(),
		RequiredTier: 2,
	})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}

	_, err = env.service.Install(context.Background(), userClaims(uuid.New(), "free"), InstallRequest{PackageRef: pkg.Slug})
	var tierErr domain.TierError
	if !errors.As(err, &tierErr) {
		t.Fatalf("expected TierError, got %v", err)
	}
	if tierErr.RequiredTier != 2 || tierErr.CurrentTier != domain.TierFree {
		t.Fatalf("unexpected tier error details: %+v", tierErr)
	}

	if _, err := env.service.Install(context.Background(), userClaims(uuid.New(), "epic"), InstallRequest{PackageRef: pkg.Slug}); err != nil {
		t.Fatalf("epic user install: %v", err)
	}
}

func TestPaidInstallWritesRoyaltyRow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "paid-skill", "100.00")
	env.mustMint(t, author, pkg, "epic", intPtr(50), "80")

	if _, err := env.service.Install(context.Background(), userClaims(uuid.New(), "pro"), InstallRequest{PackageRef: pkg.Slug}); err != nil {
		t.Fatalf("install: %v", err)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if len(env.store.royalties) != 1 {
		t.Fatalf("expected one royalty row, got %d", len(env.store.royalties))
	}
	row := env.store.royalties[0]
	if row.RoyaltyAmountUsd.StringFixed(4) != "80.0000" {
		t.Fatalf("expected royalty 80.0000, got %s", row.RoyaltyAmountUsd.StringFixed(4))
	}
	if !row.GrossAmountUsd.Equal(pkg.PriceUsd) {
		t.Fatalf("expected gross %s, got %s", pkg.PriceUsd, row.GrossAmountUsd)
	}
}

func TestUninstallOwnershipAndPermanence(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "owned-skill", "0")
	env.mustMint(t, author, pkg, "rare", intPtr(5), "0")
	user := uuid.New()

	inst, err := env.service.Install(context.Background(), userClaims(user, "pro"), InstallRequest{PackageRef: pkg.Slug})
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	if err := env.service.Uninstall(context.Background(), userClaims(uuid.New(), "pro"), inst.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner uninstall, got %v", err)
	}
	if err := env.service.Uninstall(context.Background(), userClaims(user, "pro"), inst.ID); err != nil {
		t.Fatalf("owner uninstall: %v", err)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if env.store.mints[pkg.ID].MintedCount != 1 {
		t.Fatalf("minted count must not decrement on uninstall, got %d", env.store.mints[pkg.ID].MintedCount)
	}
}
