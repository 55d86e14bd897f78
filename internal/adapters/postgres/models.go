package postgres

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// All timestamps are persisted as integer milliseconds since epoch; money
// columns are decimal(10,4).

type packageModel struct {
	PackageID    uuid.UUID       `gorm:"column:package_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Slug         string          `gorm:"column:slug"`
	Version      string          `gorm:"column:version"`
	DisplayName  string          `gorm:"column:display_name"`
	Description  string          `gorm:"column:description"`
	Category     string          `gorm:"column:category"`
	Maturity     string          `gorm:"column:maturity"`
	Tags         string          `gorm:"column:tags"`
	AuthorUserID uuid.UUID       `gorm:"column:author_user_id"`
	PriceUsd     decimal.Decimal `gorm:"column:price_usd;type:decimal(10,4)"`
	License      string          `gorm:"column:license"`
	RequiredTier int             `gorm:"column:required_tier"`
	Status       string          `gorm:"column:status"`
	InstallCount int64           `gorm:"column:install_count"`
	RatingSum    int64           `gorm:"column:rating_sum"`
	RatingCount  int64           `gorm:"column:rating_count"`
	CreatedAtMs  int64           `gorm:"column:created_at_ms"`
	UpdatedAtMs  int64           `gorm:"column:updated_at_ms"`
}

func (packageModel) TableName() string { return "packages" }

type mintModel struct {
	PackageID             uuid.UUID       `gorm:"column:package_id;type:uuid;primaryKey"`
	Rarity                string          `gorm:"column:rarity"`
	MaxEditions           *int            `gorm:"column:max_editions"`
	MintedCount           int             `gorm:"column:minted_count"`
	CreatorID             uuid.UUID       `gorm:"column:creator_id"`
	CreatorRoyaltyPercent decimal.Decimal `gorm:"column:creator_royalty_percent;type:decimal(10,4)"`
	CreatedAtMs           int64           `gorm:"column:created_at_ms"`
}

func (mintModel) TableName() string { return "mints" }

type installationModel struct {
	InstallationID  uuid.UUID `gorm:"column:installation_id;type:uuid;default:gen_random_uuid();primaryKey"`
	PackageID       uuid.UUID `gorm:"column:package_id"`
	UserID          uuid.UUID `gorm:"column:user_id"`
	AgentID         string    `gorm:"column:agent_id"`
	Version         string    `gorm:"column:version"`
	Status          string    `gorm:"column:status"`
	Enabled         bool      `gorm:"column:enabled"`
	Config          string    `gorm:"column:config"`
	InstalledAtMs   int64     `gorm:"column:installed_at_ms"`
	UninstalledAtMs *int64    `gorm:"column:uninstalled_at_ms"`
}

func (installationModel) TableName() string { return "installations" }

type royaltyLedgerModel struct {
	EntryID          uuid.UUID       `gorm:"column:entry_id;type:uuid;default:gen_random_uuid();primaryKey"`
	PackageID        uuid.UUID       `gorm:"column:package_id"`
	CreatorID        uuid.UUID       `gorm:"column:creator_id"`
	BuyerID          uuid.UUID       `gorm:"column:buyer_id"`
	InstallationID   uuid.UUID       `gorm:"column:installation_id"`
	GrossAmountUsd   decimal.Decimal `gorm:"column:gross_amount_usd;type:decimal(10,4)"`
	RoyaltyAmountUsd decimal.Decimal `gorm:"column:royalty_amount_usd;type:decimal(10,4)"`
	RoyaltyPercent   decimal.Decimal `gorm:"column:royalty_percent;type:decimal(10,4)"`
	CreatedAtMs      int64           `gorm:"column:created_at_ms"`
}

func (royaltyLedgerModel) TableName() string { return "royalty_ledger" }

type knowledgeModel struct {
	KnowledgeID uuid.UUID `gorm:"column:knowledge_id;type:uuid;default:gen_random_uuid();primaryKey"`
	PackageID   uuid.UUID `gorm:"column:package_id"`
	WrappedDek  []byte    `gorm:"column:wrapped_dek"`
	Ciphertext  []byte    `gorm:"column:ciphertext"`
	ContentHash string    `gorm:"column:content_hash"`
	Version     int       `gorm:"column:version"`
	IsActive    bool      `gorm:"column:is_active"`
	CreatedAtMs int64     `gorm:"column:created_at_ms"`
}

func (knowledgeModel) TableName() string { return "encrypted_knowledge" }

type subscriptionModel struct {
	SubscriptionID uuid.UUID `gorm:"column:subscription_id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id"`
	Tier           string    `gorm:"column:tier"`
	Status         string    `gorm:"column:status"`
	CallsUsed      int64     `gorm:"column:calls_used"`
	CallsLimit     int64     `gorm:"column:calls_limit"`
	PeriodStartMs  int64     `gorm:"column:period_start_ms"`
	PeriodEndMs    int64     `gorm:"column:period_end_ms"`
}

func (subscriptionModel) TableName() string { return "subscriptions" }

type usageLedgerModel struct {
	EntryID           uuid.UUID       `gorm:"column:entry_id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID       `gorm:"column:user_id"`
	PackageID         uuid.UUID       `gorm:"column:package_id"`
	SubscriptionID    *uuid.UUID      `gorm:"column:subscription_id"`
	CostUsd           decimal.Decimal `gorm:"column:cost_usd;type:decimal(10,4)"`
	CreatorRoyaltyUsd decimal.Decimal `gorm:"column:creator_royalty_usd;type:decimal(10,4)"`
	IsOverage         bool            `gorm:"column:is_overage"`
	CreatedAtMs       int64           `gorm:"column:created_at_ms"`
}

func (usageLedgerModel) TableName() string { return "usage_ledger" }

type invocationLogModel struct {
	Seq            int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	PackageID      uuid.UUID `gorm:"column:package_id"`
	CallerID       uuid.UUID `gorm:"column:caller_id"`
	InferenceMs    *int64    `gorm:"column:inference_ms"`
	ConclusionHash string    `gorm:"column:conclusion_hash"`
	PrevHash       string    `gorm:"column:prev_hash"`
	EventHash      string    `gorm:"column:event_hash"`
	CreatedAtMs    int64     `gorm:"column:created_at_ms"`
}

func (invocationLogModel) TableName() string { return "invocation_log" }

type outboxModel struct {
	OutboxID      uuid.UUID `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType     string    `gorm:"column:event_type"`
	PartitionKey  string    `gorm:"column:partition_key"`
	Payload       string    `gorm:"column:payload"`
	RetryCount    int       `gorm:"column:retry_count"`
	PublishedAtMs *int64    `gorm:"column:published_at_ms"`
	LastError     *string   `gorm:"column:last_error"`
	LastErrorAtMs *int64    `gorm:"column:last_error_at_ms"`
	CreatedAtMs   int64     `gorm:"column:created_at_ms"`
}

func (outboxModel) TableName() string { return "marketplace_outbox" }

type eventDedupModel struct {
	EventID       string `gorm:"column:event_id;primaryKey"`
	EventType     string `gorm:"column:event_type"`
	ProcessedAtMs int64  `gorm:"column:processed_at_ms"`
	ExpiresAtMs   int64  `gorm:"column:expires_at_ms"`
}

func (eventDedupModel) TableName() string { return "marketplace_event_dedup" }
