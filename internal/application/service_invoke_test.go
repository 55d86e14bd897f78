package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

func (e *testEnv) giveSubscription(t *testing.T, user uuid.UUID, tier domain.Tier, callsUsed, callsLimit int64) uuid.UUID {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	sub := &domain.Subscription{
		ID:          uuid.New(),
		UserID:      user,
		Tier:        tier,
		Status:      domain.SubscriptionStatusActive,
		CallsUsed:   callsUsed,
		CallsLimit:  callsLimit,
		PeriodStart: time.Now().Add(-time.Hour),
		PeriodEnd:   time.Now().Add(24 * time.Hour),
	}
	e.store.subs[user] = sub
	return sub.ID
}

func setupInvokable(t *testing.T, env *testEnv, slug string) (uuid.UUID, domain.Package) {
	t.Helper()
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, slug, "0")
	env.mustUpsertKnowledge(t, author, pkg, `when sentiment < 0 then flag`)
	return author, pkg
}

func TestInvokeOfflineMode(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	_, pkg := setupInvokable(t, env, "offline-skill")
	user := uuid.New()

	resp, err := env.service.Invoke(context.Background(), userClaims(user, "free"), pkg.Slug, InvokeRequest{Query: "is this negative?"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.Mode != domain.ModeOffline {
		t.Fatalf("expected offline mode, got %q", resp.Mode)
	}
	if resp.PrivacyNotice == "" {
		t.Fatalf("expected privacy notice")
	}

	again, err := env.service.Invoke(context.Background(), userClaims(uuid.New(), "free"), pkg.Slug, InvokeRequest{Query: "is this negative?"})
	if err != nil {
		t.Fatalf("second invoke: %v", err)
	}
	if again.Conclusion != resp.Conclusion {
		t.Fatalf("offline conclusion must be deterministic: %q vs %q", resp.Conclusion, again.Conclusion)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if len(env.store.usage) != 2 {
		t.Fatalf("expected 2 usage rows, got %d", len(env.store.usage))
	}
	if len(env.store.invocations[pkg.ID]) != 2 {
		t.Fatalf("expected 2 invocation log rows, got %d", len(env.store.invocations[pkg.ID]))
	}
}

func TestInvokeIncludedCallIncrementsCallsUsed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	_, pkg := setupInvokable(t, env, "metered-skill")
	user := uuid.New()
	subID := env.giveSubscription(t, user, domain.TierPro, 4, 5)

	resp, err := env.service.Invoke(context.Background(), userClaims(user, "pro"), pkg.Slug, InvokeRequest{Query: "q"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !resp.CostUsd.IsZero() || resp.IsOverage {
		t.Fatalf("expected included call at zero cost, got cost=%s overage=%v", resp.CostUsd, resp.IsOverage)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if env.store.subs[user].CallsUsed != 5 {
		t.Fatalf("expected callsUsed 5, got %d", env.store.subs[user].CallsUsed)
	}
	row := env.store.usage[len(env.store.usage)-1]
	if row.SubscriptionID == nil || *row.SubscriptionID != subID {
		t.Fatalf("expected usage row attached to subscription")
	}
	if row.IsOverage {
		t.Fatalf("expected included usage row")
	}
}

func TestInvokeOverLimitBillsOverage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	_, pkg := setupInvokable(t, env, "overage-skill")
	user := uuid.New()
	env.giveSubscription(t, user, domain.TierPro, 5, 5)

	resp, err := env.service.Invoke(context.Background(), userClaims(user, "pro"), pkg.Slug, InvokeRequest{Query: "q"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.CostUsd.StringFixed(2) != "0.05" || !resp.IsOverage {
		t.Fatalf("expected 0.05 overage, got cost=%s overage=%v", resp.CostUsd, resp.IsOverage)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if env.store.subs[user].CallsUsed != 5 {
		t.Fatalf("overage call must not increment callsUsed, got %d", env.store.subs[user].CallsUsed)
	}
	row := env.store.usage[len(env.store.usage)-1]
	if row.CreatorRoyaltyUsd.StringFixed(4) != "0.0350" {
		t.Fatalf("expected royalty 0.0350, got %s", row.CreatorRoyaltyUsd.StringFixed(4))
	}
}

func TestInvokeUnlimitedSubscription(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	_, pkg := setupInvokable(t, env, "unlimited-skill")
	user := uuid.New()
	env.giveSubscription(t, user, domain.TierLegendary, 9000, 0)

	resp, err := env.service.Invoke(context.Background(), userClaims(user, "legendary"), pkg.Slug, InvokeRequest{Query: "q"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !resp.CostUsd.IsZero() || resp.IsOverage {
		t.Fatalf("expected free unlimited call, got cost=%s overage=%v", resp.CostUsd, resp.IsOverage)
	}
}

func TestInvokeFreeTierPaysOverage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	_, pkg := setupInvokable(t, env, "free-caller-skill")

	resp, err := env.service.Invoke(context.Background(), userClaims(uuid.New(), "free"), pkg.Slug, InvokeRequest{Query: "q"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.CostUsd.StringFixed(2) != "0.05" || !resp.IsOverage {
		t.Fatalf("expected free tier overage pricing, got cost=%s overage=%v", resp.CostUsd, resp.IsOverage)
	}
}

func TestInvokeReasonerFailureWritesNothing(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{ReasonerCredential: "platform-secret"})
	env.service.remote = failingReasoner{}
	_, pkg := setupInvokable(t, env, "failing-skill")

	_, err := env.service.Invoke(context.Background(), userClaims(uuid.New(), "free"), pkg.Slug, InvokeRequest{Query: "q"})
	if !errors.Is(err, domain.ErrReasonerUnavailable) {
		t.Fatalf("expected ErrReasonerUnavailable, got %v", err)
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if len(env.store.usage) != 0 {
		t.Fatalf("usage ledger must stay empty on reasoner failure, got %d rows", len(env.store.usage))
	}
	if len(env.store.invocations[pkg.ID]) != 0 {
		t.Fatalf("invocation log must stay empty on reasoner failure")
	}
}

func TestInvokeCredentialPrecedence(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{ReasonerCredential: "platform-secret"})
	env.service.remote = staticReasoner{conclusion: "remote says yes"}
	_, pkg := setupInvokable(t, env, "remote-skill")

	resp, err := env.service.Invoke(context.Background(), userClaims(uuid.New(), "free"), pkg.Slug, InvokeRequest{
		Query:              "q",
		ReasonerCredential: "tenant-secret",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.Mode != domain.ModeTenantCredential {
		t.Fatalf("expected tenant-credential mode, got %q", resp.Mode)
	}

	resp, err = env.service.Invoke(context.Background(), userClaims(uuid.New(), "free"), pkg.Slug, InvokeRequest{Query: "q"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.Mode != domain.ModePlatform {
		t.Fatalf("expected platform mode, got %q", resp.Mode)
	}
}

func TestInvokeHashChainIntegrity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	_, pkg := setupInvokable(t, env, "chained-skill")

	for i := 0; i < 5; i++ {
		if _, err := env.service.Invoke(context.Background(), userClaims(uuid.New(), "free"), pkg.Slug, InvokeRequest{Query: "q"}); err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
	}

	env.store.mu.Lock()
	chain := append([]domain.InvocationLogEntry(nil), env.store.invocations[pkg.ID]...)
	env.store.mu.Unlock()
	if len(chain) != 5 {
		t.Fatalf("expected 5 chain entries, got %d", len(chain))
	}
	if !domain.VerifyChain(chain) {
		t.Fatalf("expected intact hash chain")
	}
	if chain[0].PrevHash != domain.GenesisHash {
		t.Fatalf("expected genesis anchor, got %q", chain[0].PrevHash)
	}
}

func TestInvokeRequiresKnowledgeAndTier(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "bare-skill", "0")

	_, err := env.service.Invoke(context.Background(), userClaims(uuid.New(), "free"), pkg.Slug, InvokeRequest{Query: "q"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found without knowledge, got %v", err)
	}

	gated, err := env.service.CreatePackage(context.Background(), authorClaims(author), CreatePackageRequest{
		Slug:         "gated-skill",
		Version:      "1.0.0",
		DisplayName:  "Gated Skill",
		PriceUsd:     decimalZero(),
		RequiredTier: 3,
	})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	env.mustUpsertKnowledge(t, author, gated, "rules")

	_, err = env.service.Invoke(context.Background(), userClaims(uuid.New(), "pro"), gated.Slug, InvokeRequest{Query: "q"})
	var tierErr domain.TierError
	if !errors.As(err, &tierErr) {
		t.Fatalf("expected TierError, got %v", err)
	}
}

// Quota accounting: callsUsed equals the number of included-subscription
// usage rows after a mixed sequence.
func TestQuotaAccountingProperty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	_, pkg := setupInvokable(t, env, "accounting-skill")
	user := uuid.New()
	subID := env.giveSubscription(t, user, domain.TierPro, 0, 3)

	for i := 0; i < 5; i++ {
		if _, err := env.service.Invoke(context.Background(), userClaims(user, "pro"), pkg.Slug, InvokeRequest{Query: "q"}); err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
	}

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	var included int64
	for _, row := range env.store.usage {
		if !row.IsOverage && row.SubscriptionID != nil && *row.SubscriptionID == subID {
			included++
		}
	}
	if env.store.subs[user].CallsUsed != included {
		t.Fatalf("callsUsed %d does not match included usage rows %d", env.store.subs[user].CallsUsed, included)
	}
	if included != 3 {
		t.Fatalf("expected 3 included calls before the limit, got %d", included)
	}
}

var _ ports.Reasoner = staticReasoner{}
