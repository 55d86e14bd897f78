package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skillforge/marketplace/internal/domain"
)

type CreatePackageParams struct {
	Slug         string
	Version      string
	DisplayName  string
	Description  string
	Category     string
	Maturity     string
	Tags         []string
	AuthorUserID uuid.UUID
	PriceUsd     decimal.Decimal
	License      string
	RequiredTier int
	CreatedAt    time.Time
}

type UpdatePackageParams struct {
	PackageID    uuid.UUID
	DisplayName  *string
	Description  *string
	Category     *string
	Maturity     *string
	Tags         []string
	PriceUsd     *decimal.Decimal
	License      *string
	RequiredTier *int
	Version      *string
	UpdatedAt    time.Time
}

type SearchSort string

const (
	SortPopularity SearchSort = "popularity"
	SortRating     SearchSort = "rating"
	SortRecent     SearchSort = "recent"
	SortName       SearchSort = "name"
)

type SearchPackagesParams struct {
	Query       string
	Category    string
	License     string
	Maturity    string
	Tags        []string
	MinRating   float64
	MaxPriceUsd *decimal.Decimal
	Sort        SearchSort
	Limit       int
	Offset      int
}

type SearchPackagesResult struct {
	Items []domain.Package
	Total int64
}

type PackageRepository interface {
	Create(ctx context.Context, params CreatePackageParams) (domain.Package, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Package, error)
	GetBySlug(ctx context.Context, slug string) (domain.Package, error)
	// GetBySlugOrID resolves a reference that may be either form.
	GetBySlugOrID(ctx context.Context, ref string) (domain.Package, error)
	Update(ctx context.Context, params UpdatePackageParams) (domain.Package, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.PackageStatus, at time.Time) error
	AddRating(ctx context.Context, id uuid.UUID, value int, at time.Time) (domain.Package, error)
	Search(ctx context.Context, params SearchPackagesParams) (SearchPackagesResult, error)
}

type CreateMintParams struct {
	PackageID             uuid.UUID
	Rarity                domain.Rarity
	MaxEditions           *int
	CreatorID             uuid.UUID
	CreatorRoyaltyPercent decimal.Decimal
	CreatedAt             time.Time
}

type MintRepository interface {
	Create(ctx context.Context, params CreateMintParams) (domain.Mint, error)
	GetByPackageID(ctx context.Context, packageID uuid.UUID) (domain.Mint, error)
}

type InstallParams struct {
	PackageRef string
	UserID     uuid.UUID
	UserTier   domain.Tier
	AgentID    string
	Enabled    bool
	Config     map[string]any
	Now        time.Time
}

// InstallationRepository owns the admission transaction. Install runs the
// whole algorithm inside one database transaction: package resolution, tier
// gate, duplicate check, installation insert, install-count increment, the
// conditional mint increment, and the royalty ledger row for paid packages.
type InstallationRepository interface {
	Install(ctx context.Context, params InstallParams) (domain.Installation, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Installation, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Installation, error)
	Uninstall(ctx context.Context, id uuid.UUID, at time.Time) error
	CountActiveByPackage(ctx context.Context, packageID uuid.UUID) (int64, error)
}

type UpsertKnowledgeParams struct {
	PackageID   uuid.UUID
	WrappedDek  []byte
	Ciphertext  []byte
	ContentHash string
	Now         time.Time
}

type KnowledgeRepository interface {
	// UpsertActive retires the current active row and inserts the replacement
	// with a bumped version. Retired rows are retained.
	UpsertActive(ctx context.Context, params UpsertKnowledgeParams) (domain.EncryptedKnowledge, error)
	GetActiveByPackageID(ctx context.Context, packageID uuid.UUID) (domain.EncryptedKnowledge, error)
}

type UpsertSubscriptionParams struct {
	UserID      uuid.UUID
	Tier        domain.Tier
	Status      domain.SubscriptionStatus
	CallsLimit  int64
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type SubscriptionRepository interface {
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (domain.Subscription, error)
	// Upsert replaces the user's subscription state from a billing event. A
	// new billing period resets calls_used.
	Upsert(ctx context.Context, params UpsertSubscriptionParams) (domain.Subscription, error)
	Cancel(ctx context.Context, userID uuid.UUID, at time.Time) error
	// IncrementCallsUsed is an expression update, never read-then-write.
	IncrementCallsUsed(ctx context.Context, subscriptionID uuid.UUID) error
}

type AppendUsageParams struct {
	UserID            uuid.UUID
	PackageID         uuid.UUID
	SubscriptionID    *uuid.UUID
	CostUsd           decimal.Decimal
	CreatorRoyaltyUsd decimal.Decimal
	IsOverage         bool
	CreatedAt         time.Time
}

type UsageLedgerRepository interface {
	Append(ctx context.Context, params AppendUsageParams) (domain.UsageLedgerEntry, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.UsageLedgerEntry, error)
}

type RoyaltyLedgerRepository interface {
	ListByCreator(ctx context.Context, creatorID uuid.UUID, limit, offset int) ([]domain.RoyaltyLedgerEntry, error)
	ListByPackage(ctx context.Context, packageID uuid.UUID, limit, offset int) ([]domain.RoyaltyLedgerEntry, error)
}

type AppendInvocationParams struct {
	PackageID      uuid.UUID
	CallerID       uuid.UUID
	InferenceMs    *int64
	ConclusionHash string
	CreatedAt      time.Time
}

// InvocationLogRepository appends hash-chained audit entries. Append must
// serialize per package so prev_hash always points at the immediately
// preceding entry.
type InvocationLogRepository interface {
	Append(ctx context.Context, params AppendInvocationParams) (domain.InvocationLogEntry, error)
	ListByPackage(ctx context.Context, packageID uuid.UUID, limit, offset int) ([]domain.InvocationLogEntry, error)
}

type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

type OutboxRecord struct {
	OutboxID     uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	PublishedAt  *time.Time
	LastError    *string
	LastErrorAt  *time.Time
	FirstSeenAt  time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error
}

type EventDedupRepository interface {
	IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error
}
