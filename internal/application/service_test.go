package application

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skillforge/marketplace/internal/adapters/cache"
	"github.com/skillforge/marketplace/internal/adapters/security"
	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

// fakeStore backs every fake repository. A single mutex stands in for the
// database's row locks, so the admission semantics under concurrency match
// the real transaction.
type fakeStore struct {
	mu          sync.Mutex
	packages    map[uuid.UUID]domain.Package
	bySlug      map[string]uuid.UUID
	mints       map[uuid.UUID]*domain.Mint
	installs    map[uuid.UUID]domain.Installation
	subs        map[uuid.UUID]*domain.Subscription
	usage       []domain.UsageLedgerEntry
	royalties   []domain.RoyaltyLedgerEntry
	invocations map[uuid.UUID][]domain.InvocationLogEntry
	knowledge   map[uuid.UUID]domain.EncryptedKnowledge
	outbox      []ports.OutboxEvent
	dedup       map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		packages:    make(map[uuid.UUID]domain.Package),
		bySlug:      make(map[string]uuid.UUID),
		mints:       make(map[uuid.UUID]*domain.Mint),
		installs:    make(map[uuid.UUID]domain.Installation),
		subs:        make(map[uuid.UUID]*domain.Subscription),
		invocations: make(map[uuid.UUID][]domain.InvocationLogEntry),
		knowledge:   make(map[uuid.UUID]domain.EncryptedKnowledge),
		dedup:       make(map[string]string),
	}
}

func (s *fakeStore) resolveLocked(ref string) (domain.Package, error) {
	if id, err := uuid.Parse(ref); err == nil {
		if pkg, ok := s.packages[id]; ok {
			return pkg, nil
		}
		return domain.Package{}, domain.ErrNotFound
	}
	if id, ok := s.bySlug[domain.NormalizeSlug(ref)]; ok {
		return s.packages[id], nil
	}
	return domain.Package{}, domain.ErrNotFound
}

type fakePackages struct{ store *fakeStore }

func (f *fakePackages) Create(_ context.Context, params ports.CreatePackageParams) (domain.Package, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if _, ok := f.store.bySlug[params.Slug]; ok {
		return domain.Package{}, fmt.Errorf("%w: slug %q is taken", domain.ErrConflict, params.Slug)
	}
	pkg := domain.Package{
		ID:           uuid.New(),
		Slug:         params.Slug,
		Version:      params.Version,
		DisplayName:  params.DisplayName,
		Description:  params.Description,
		Category:     params.Category,
		Maturity:     params.Maturity,
		Tags:         params.Tags,
		AuthorUserID: params.AuthorUserID,
		PriceUsd:     params.PriceUsd,
		License:      params.License,
		RequiredTier: params.RequiredTier,
		Status:       domain.PackageStatusActive,
		CreatedAt:    params.CreatedAt,
		UpdatedAt:    params.CreatedAt,
	}
	f.store.packages[pkg.ID] = pkg
	f.store.bySlug[pkg.Slug] = pkg.ID
	return pkg, nil
}

func (f *fakePackages) GetByID(_ context.Context, id uuid.UUID) (domain.Package, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	pkg, ok := f.store.packages[id]
	if !ok {
		return domain.Package{}, domain.ErrNotFound
	}
	return pkg, nil
}

func (f *fakePackages) GetBySlug(_ context.Context, slug string) (domain.Package, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	id, ok := f.store.bySlug[domain.NormalizeSlug(slug)]
	if !ok {
		return domain.Package{}, domain.ErrNotFound
	}
	return f.store.packages[id], nil
}

func (f *fakePackages) GetBySlugOrID(_ context.Context, ref string) (domain.Package, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.resolveLocked(ref)
}

func (f *fakePackages) Update(_ context.Context, params ports.UpdatePackageParams) (domain.Package, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	pkg, ok := f.store.packages[params.PackageID]
	if !ok {
		return domain.Package{}, domain.ErrNotFound
	}
	if params.DisplayName != nil {
		pkg.DisplayName = *params.DisplayName
	}
	if params.Description != nil {
		pkg.Description = *params.Description
	}
	if params.PriceUsd != nil {
		pkg.PriceUsd = *params.PriceUsd
	}
	if params.RequiredTier != nil {
		pkg.RequiredTier = *params.RequiredTier
	}
	if params.Version != nil {
		pkg.Version = *params.Version
	}
	pkg.UpdatedAt = params.UpdatedAt
	f.store.packages[pkg.ID] = pkg
	return pkg, nil
}

func (f *fakePackages) SetStatus(_ context.Context, id uuid.UUID, status domain.PackageStatus, at time.Time) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	pkg, ok := f.store.packages[id]
	if !ok {
		return domain.ErrNotFound
	}
	pkg.Status = status
	pkg.UpdatedAt = at
	f.store.packages[id] = pkg
	return nil
}

func (f *fakePackages) AddRating(_ context.Context, id uuid.UUID, value int, at time.Time) (domain.Package, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	pkg, ok := f.store.packages[id]
	if !ok {
		return domain.Package{}, domain.ErrNotFound
	}
	total := pkg.Rating*float64(pkg.RatingCount) + float64(value)
	pkg.RatingCount++
	pkg.Rating = total / float64(pkg.RatingCount)
	pkg.UpdatedAt = at
	f.store.packages[id] = pkg
	return pkg, nil
}

func (f *fakePackages) Search(_ context.Context, params ports.SearchPackagesParams) (ports.SearchPackagesResult, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var items []domain.Package
	for _, pkg := range f.store.packages {
		if pkg.Status != domain.PackageStatusActive {
			continue
		}
		if params.Query != "" {
			q := strings.ToLower(params.Query)
			if !strings.Contains(strings.ToLower(pkg.DisplayName), q) &&
				!strings.Contains(strings.ToLower(pkg.Description), q) {
				continue
			}
		}
		if params.Category != "" && pkg.Category != params.Category {
			continue
		}
		items = append(items, pkg)
	}
	total := int64(len(items))
	if params.Offset < len(items) {
		items = items[params.Offset:]
	} else {
		items = nil
	}
	if len(items) > params.Limit {
		items = items[:params.Limit]
	}
	return ports.SearchPackagesResult{Items: items, Total: total}, nil
}

type fakeMints struct{ store *fakeStore }

func (f *fakeMints) Create(_ context.Context, params ports.CreateMintParams) (domain.Mint, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if _, ok := f.store.mints[params.PackageID]; ok {
		return domain.Mint{}, fmt.Errorf("%w: package is already minted", domain.ErrConflict)
	}
	mint := &domain.Mint{
		PackageID:             params.PackageID,
		Rarity:                params.Rarity,
		MaxEditions:           params.MaxEditions,
		CreatorID:             params.CreatorID,
		CreatorRoyaltyPercent: params.CreatorRoyaltyPercent,
		CreatedAt:             params.CreatedAt,
	}
	f.store.mints[params.PackageID] = mint
	return *mint, nil
}

func (f *fakeMints) GetByPackageID(_ context.Context, packageID uuid.UUID) (domain.Mint, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	mint, ok := f.store.mints[packageID]
	if !ok {
		return domain.Mint{}, domain.ErrNotFound
	}
	return *mint, nil
}

type fakeInstallations struct{ store *fakeStore }

func (f *fakeInstallations) Install(_ context.Context, params ports.InstallParams) (domain.Installation, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	pkg, err := f.store.resolveLocked(params.PackageRef)
	if err != nil {
		return domain.Installation{}, err
	}
	if pkg.Status != domain.PackageStatusActive {
		return domain.Installation{}, domain.ErrNotFound
	}
	if params.UserTier.Rank() < pkg.RequiredTier {
		return domain.Installation{}, domain.TierError{RequiredTier: pkg.RequiredTier, CurrentTier: params.UserTier}
	}
	for _, inst := range f.store.installs {
		if inst.PackageID == pkg.ID && inst.UserID == params.UserID && inst.Status == domain.InstallationStatusActive {
			return domain.Installation{}, domain.DuplicateInstallError{PackageSlug: pkg.Slug}
		}
	}

	inst := domain.Installation{
		ID:          uuid.New(),
		PackageID:   pkg.ID,
		UserID:      params.UserID,
		AgentID:     params.AgentID,
		Version:     pkg.Version,
		Status:      domain.InstallationStatusActive,
		Enabled:     params.Enabled,
		Config:      params.Config,
		InstalledAt: params.Now,
	}

	mint := f.store.mints[pkg.ID]
	if mint != nil {
		if mint.MaxEditions != nil && mint.MintedCount >= *mint.MaxEditions {
			inst.Status = domain.InstallationStatusFailed
			f.store.installs[inst.ID] = inst
			return domain.Installation{}, domain.EditionLimitError{Rarity: mint.Rarity, MaxEditions: *mint.MaxEditions}
		}
		mint.MintedCount++
	}

	f.store.installs[inst.ID] = inst
	pkg.InstallCount++
	f.store.packages[pkg.ID] = pkg

	if mint != nil && pkg.Paid() {
		f.store.royalties = append(f.store.royalties, domain.RoyaltyLedgerEntry{
			ID:               uuid.New(),
			PackageID:        pkg.ID,
			CreatorID:        mint.CreatorID,
			BuyerID:          params.UserID,
			InstallationID:   inst.ID,
			GrossAmountUsd:   pkg.PriceUsd,
			RoyaltyAmountUsd: domain.RoyaltyAmount(pkg.PriceUsd, mint.CreatorRoyaltyPercent),
			RoyaltyPercent:   mint.CreatorRoyaltyPercent,
			CreatedAt:        params.Now,
		})
	}
	return inst, nil
}

func (f *fakeInstallations) GetByID(_ context.Context, id uuid.UUID) (domain.Installation, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	inst, ok := f.store.installs[id]
	if !ok {
		return domain.Installation{}, domain.ErrNotFound
	}
	return inst, nil
}

func (f *fakeInstallations) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]domain.Installation, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.Installation
	for _, inst := range f.store.installs {
		if inst.UserID == userID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeInstallations) Uninstall(_ context.Context, id uuid.UUID, at time.Time) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	inst, ok := f.store.installs[id]
	if !ok {
		return domain.ErrNotFound
	}
	inst.Status = domain.InstallationStatusUninstalled
	inst.UninstalledAt = &at
	f.store.installs[id] = inst
	return nil
}

func (f *fakeInstallations) CountActiveByPackage(_ context.Context, packageID uuid.UUID) (int64, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var n int64
	for _, inst := range f.store.installs {
		if inst.PackageID == packageID && inst.Status == domain.InstallationStatusActive {
			n++
		}
	}
	return n, nil
}

type fakeKnowledge struct{ store *fakeStore }

func (f *fakeKnowledge) UpsertActive(_ context.Context, params ports.UpsertKnowledgeParams) (domain.EncryptedKnowledge, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	version := 1
	if current, ok := f.store.knowledge[params.PackageID]; ok {
		version = current.Version + 1
	}
	k := domain.EncryptedKnowledge{
		ID:          uuid.New(),
		PackageID:   params.PackageID,
		WrappedDek:  params.WrappedDek,
		Ciphertext:  params.Ciphertext,
		ContentHash: params.ContentHash,
		Version:     version,
		IsActive:    true,
		CreatedAt:   params.Now,
	}
	f.store.knowledge[params.PackageID] = k
	return k, nil
}

func (f *fakeKnowledge) GetActiveByPackageID(_ context.Context, packageID uuid.UUID) (domain.EncryptedKnowledge, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	k, ok := f.store.knowledge[packageID]
	if !ok {
		return domain.EncryptedKnowledge{}, domain.ErrNotFound
	}
	return k, nil
}

type fakeSubscriptions struct{ store *fakeStore }

func (f *fakeSubscriptions) GetActiveByUser(_ context.Context, userID uuid.UUID) (domain.Subscription, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	sub, ok := f.store.subs[userID]
	if !ok || sub.Status != domain.SubscriptionStatusActive {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return *sub, nil
}

func (f *fakeSubscriptions) Upsert(_ context.Context, params ports.UpsertSubscriptionParams) (domain.Subscription, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	sub, ok := f.store.subs[params.UserID]
	if !ok {
		sub = &domain.Subscription{ID: uuid.New(), UserID: params.UserID}
		f.store.subs[params.UserID] = sub
	}
	if !sub.PeriodStart.Equal(params.PeriodStart) {
		sub.CallsUsed = 0
	}
	sub.Tier = params.Tier
	sub.Status = params.Status
	sub.CallsLimit = params.CallsLimit
	sub.PeriodStart = params.PeriodStart
	sub.PeriodEnd = params.PeriodEnd
	return *sub, nil
}

func (f *fakeSubscriptions) Cancel(_ context.Context, userID uuid.UUID, _ time.Time) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	sub, ok := f.store.subs[userID]
	if !ok {
		return domain.ErrNotFound
	}
	sub.Status = domain.SubscriptionStatusCanceled
	return nil
}

func (f *fakeSubscriptions) IncrementCallsUsed(_ context.Context, subscriptionID uuid.UUID) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, sub := range f.store.subs {
		if sub.ID == subscriptionID {
			sub.CallsUsed++
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeUsageLedger struct{ store *fakeStore }

func (f *fakeUsageLedger) Append(_ context.Context, params ports.AppendUsageParams) (domain.UsageLedgerEntry, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	entry := domain.UsageLedgerEntry{
		ID:                uuid.New(),
		UserID:            params.UserID,
		PackageID:         params.PackageID,
		SubscriptionID:    params.SubscriptionID,
		CostUsd:           params.CostUsd,
		CreatorRoyaltyUsd: params.CreatorRoyaltyUsd,
		IsOverage:         params.IsOverage,
		CreatedAt:         params.CreatedAt,
	}
	f.store.usage = append(f.store.usage, entry)
	return entry, nil
}

func (f *fakeUsageLedger) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]domain.UsageLedgerEntry, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.UsageLedgerEntry
	for _, e := range f.store.usage {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeRoyaltyLedger struct{ store *fakeStore }

func (f *fakeRoyaltyLedger) ListByCreator(_ context.Context, creatorID uuid.UUID, limit, offset int) ([]domain.RoyaltyLedgerEntry, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.RoyaltyLedgerEntry
	for _, e := range f.store.royalties {
		if e.CreatorID == creatorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRoyaltyLedger) ListByPackage(_ context.Context, packageID uuid.UUID, limit, offset int) ([]domain.RoyaltyLedgerEntry, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.RoyaltyLedgerEntry
	for _, e := range f.store.royalties {
		if e.PackageID == packageID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeInvocationLog struct{ store *fakeStore }

func (f *fakeInvocationLog) Append(_ context.Context, params ports.AppendInvocationParams) (domain.InvocationLogEntry, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	chain := f.store.invocations[params.PackageID]
	prev := domain.GenesisHash
	if len(chain) > 0 {
		prev = chain[len(chain)-1].EventHash
	}
	entry := domain.InvocationLogEntry{
		Seq:            int64(len(chain) + 1),
		PackageID:      params.PackageID,
		CallerID:       params.CallerID,
		InferenceMs:    params.InferenceMs,
		ConclusionHash: params.ConclusionHash,
		PrevHash:       prev,
		EventHash:      domain.ChainEventHash(params.PackageID, params.CallerID, params.ConclusionHash, prev),
		CreatedAt:      params.CreatedAt,
	}
	f.store.invocations[params.PackageID] = append(chain, entry)
	return entry, nil
}

func (f *fakeInvocationLog) ListByPackage(_ context.Context, packageID uuid.UUID, limit, offset int) ([]domain.InvocationLogEntry, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return append([]domain.InvocationLogEntry(nil), f.store.invocations[packageID]...), nil
}

type fakeOutbox struct{ store *fakeStore }

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.outbox = append(f.store.outbox, event)
	return nil
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, _ uuid.UUID, _ time.Time) error { return nil }

func (f *fakeOutbox) MarkFailed(_ context.Context, _ uuid.UUID, _ string, _ time.Time) error {
	return nil
}

type fakeEventDedup struct{ store *fakeStore }

func (f *fakeEventDedup) IsDuplicate(_ context.Context, eventID string, _ time.Time) (bool, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	_, ok := f.store.dedup[eventID]
	return ok, nil
}

func (f *fakeEventDedup) MarkProcessed(_ context.Context, eventID, eventType string, _ time.Time) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.dedup[eventID] = eventType
	return nil
}

type staticReasoner struct {
	conclusion string
}

func (r staticReasoner) Conclude(_ context.Context, _ ports.ReasonRequest) (ports.ReasonResult, error) {
	return ports.ReasonResult{Conclusion: r.conclusion, InferenceMs: 12}, nil
}

type failingReasoner struct{}

func (failingReasoner) Conclude(_ context.Context, _ ports.ReasonRequest) (ports.ReasonResult, error) {
	return ports.ReasonResult{}, domain.ErrReasonerUnavailable
}

type offlineReasoner struct{}

func (offlineReasoner) Conclude(_ context.Context, req ports.ReasonRequest) (ports.ReasonResult, error) {
	return ports.ReasonResult{Conclusion: "offline:" + domain.ConclusionHash(string(req.Rules)+req.Query)[:16]}, nil
}

type testEnv struct {
	service *Service
	store   *fakeStore
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	store := newFakeStore()
	envelope, err := security.NewEnvelope(bytes.Repeat([]byte{0x24}, 32))
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	service := NewService(Dependencies{
		Config:          cfg,
		Packages:        &fakePackages{store: store},
		Mints:           &fakeMints{store: store},
		Installations:   &fakeInstallations{store: store},
		Knowledge:       &fakeKnowledge{store: store},
		Subscriptions:   &fakeSubscriptions{store: store},
		UsageLedger:     &fakeUsageLedger{store: store},
		RoyaltyLedger:   &fakeRoyaltyLedger{store: store},
		InvocationLog:   &fakeInvocationLog{store: store},
		Outbox:          &fakeOutbox{store: store},
		EventDedup:      &fakeEventDedup{store: store},
		Cache:           cache.NewNoopCache(),
		Envelope:        envelope,
		Secure:          security.NewContexts(),
		OfflineReasoner: offlineReasoner{},
		Tokens:          security.NewJWTVerifier("test-secret"),
	})
	return &testEnv{service: service, store: store}
}

func authorClaims(id uuid.UUID) ports.AuthClaims {
	return ports.AuthClaims{UserID: id.String(), Tier: "legendary"}
}

func userClaims(id uuid.UUID, tier string) ports.AuthClaims {
	return ports.AuthClaims{UserID: id.String(), Tier: tier}
}

func (e *testEnv) mustCreatePackage(t *testing.T, author uuid.UUID, slug, price string) domain.Package {
	t.Helper()
	pkg, err := e.service.CreatePackage(context.Background(), authorClaims(author), CreatePackageRequest{
		Slug:        slug,
		Version:     "1.0.0",
		DisplayName: "Test Package " + slug,
		Description: "a test skill package",
		PriceUsd:    decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	return pkg
}

func (e *testEnv) mustMint(t *testing.T, author uuid.UUID, pkg domain.Package, rarity string, maxEditions *int, royaltyPercent string) domain.Mint {
	t.Helper()
	mint, err := e.service.CreateMint(context.Background(), authorClaims(author), CreateMintRequest{
		PackageRef:            pkg.Slug,
		Rarity:                rarity,
		MaxEditions:           maxEditions,
		CreatorRoyaltyPercent: decimal.RequireFromString(royaltyPercent),
		GraduationAttestation: "curation-board-approval",
	})
	if err != nil {
		t.Fatalf("create mint: %v", err)
	}
	return mint
}

func (e *testEnv) mustUpsertKnowledge(t *testing.T, author uuid.UUID, pkg domain.Package, rules string) {
	t.Helper()
	if _, err := e.service.UpsertKnowledge(context.Background(), authorClaims(author), pkg.Slug, UpsertKnowledgeRequest{
		PlaintextRules: rules,
	}); err != nil {
		t.Fatalf("upsert knowledge: %v", err)
	}
}

func intPtr(v int) *int { return &v }

func decimalZero() decimal.Decimal { return decimal.Zero }
