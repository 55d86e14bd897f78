package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PackageStatus string

const (
	PackageStatusActive   PackageStatus = "active"
	PackageStatusArchived PackageStatus = "archived"
	PackageStatusBanned   PackageStatus = "banned"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

type InstallationStatus string

const (
	InstallationStatusInstalling  InstallationStatus = "installing"
	InstallationStatusActive      InstallationStatus = "active"
	InstallationStatusFailed      InstallationStatus = "failed"
	InstallationStatusUninstalled InstallationStatus = "uninstalled"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
)

type Package struct {
	ID           uuid.UUID       `json:"id"`
	Slug         string          `json:"slug"`
	Version      string          `json:"version"`
	DisplayName  string          `json:"display_name"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Maturity     string          `json:"maturity"`
	Tags         []string        `json:"tags"`
	AuthorUserID uuid.UUID       `json:"author_user_id"`
	PriceUsd     decimal.Decimal `json:"price_usd"`
	License      string          `json:"license"`
	RequiredTier int             `json:"required_tier"`
	Status       PackageStatus   `json:"status"`
	InstallCount int64           `json:"install_count"`
	Rating       float64         `json:"rating"`
	RatingCount  int64           `json:"rating_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (p Package) Paid() bool { return p.PriceUsd.IsPositive() }

type Mint struct {
	PackageID             uuid.UUID       `json:"package_id"`
	Rarity                Rarity          `json:"rarity"`
	MaxEditions           *int            `json:"max_editions"`
	MintedCount           int             `json:"minted_count"`
	CreatorID             uuid.UUID       `json:"creator_id"`
	CreatorRoyaltyPercent decimal.Decimal `json:"creator_royalty_percent"`
	CreatedAt             time.Time       `json:"created_at"`
}

type Installation struct {
	ID            uuid.UUID          `json:"id"`
	PackageID     uuid.UUID          `json:"package_id"`
	UserID        uuid.UUID          `json:"user_id"`
	AgentID       string             `json:"agent_id"`
	Version       string             `json:"version"`
	Status        InstallationStatus `json:"status"`
	Enabled       bool               `json:"enabled"`
	Config        map[string]any     `json:"config,omitempty"`
	InstalledAt   time.Time          `json:"installed_at"`
	UninstalledAt *time.Time         `json:"uninstalled_at,omitempty"`
}

type RoyaltyLedgerEntry struct {
	ID               uuid.UUID       `json:"id"`
	PackageID        uuid.UUID       `json:"package_id"`
	CreatorID        uuid.UUID       `json:"creator_id"`
	BuyerID          uuid.UUID       `json:"buyer_id"`
	InstallationID   uuid.UUID       `json:"installation_id"`
	GrossAmountUsd   decimal.Decimal `json:"gross_amount_usd"`
	RoyaltyAmountUsd decimal.Decimal `json:"royalty_amount_usd"`
	RoyaltyPercent   decimal.Decimal `json:"royalty_percent"`
	CreatedAt        time.Time       `json:"created_at"`
}

type EncryptedKnowledge struct {
	ID          uuid.UUID `json:"id"`
	PackageID   uuid.UUID `json:"package_id"`
	WrappedDek  []byte    `json:"-"`
	Ciphertext  []byte    `json:"-"`
	ContentHash string    `json:"content_hash"`
	Version     int       `json:"version"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Subscription struct {
	ID          uuid.UUID          `json:"id"`
	UserID      uuid.UUID          `json:"user_id"`
	Tier        Tier               `json:"tier"`
	Status      SubscriptionStatus `json:"status"`
	CallsUsed   int64              `json:"calls_used"`
	CallsLimit  int64              `json:"calls_limit"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
}

// Unlimited reports whether the subscription has no monthly call cap.
func (s Subscription) Unlimited() bool { return s.CallsLimit == 0 }

type UsageLedgerEntry struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	PackageID         uuid.UUID       `json:"package_id"`
	SubscriptionID    *uuid.UUID      `json:"subscription_id,omitempty"`
	CostUsd           decimal.Decimal `json:"cost_usd"`
	CreatorRoyaltyUsd decimal.Decimal `json:"creator_royalty_usd"`
	IsOverage         bool            `json:"is_overage"`
	CreatedAt         time.Time       `json:"created_at"`
}

type InvocationLogEntry struct {
	Seq            int64     `json:"seq"`
	PackageID      uuid.UUID `json:"package_id"`
	CallerID       uuid.UUID `json:"caller_id"`
	InferenceMs    *int64    `json:"inference_ms,omitempty"`
	ConclusionHash string    `json:"conclusion_hash"`
	PrevHash       string    `json:"prev_hash"`
	EventHash      string    `json:"event_hash"`
	CreatedAt      time.Time `json:"created_at"`
}

// QuotaDecision is the outcome of a pre-invocation quota check.
type QuotaDecision struct {
	Allowed        bool
	CostUsd        decimal.Decimal
	RoyaltyUsd     decimal.Decimal
	SubscriptionID *uuid.UUID
	IsOverage      bool
}

// ReasonerMode identifies which credential path produced a conclusion.
type ReasonerMode string

const (
	ModeTenantCredential ReasonerMode = "tenant-credential"
	ModePlatform         ReasonerMode = "platform"
	ModeOffline          ReasonerMode = "offline"
)
