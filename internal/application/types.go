package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skillforge/marketplace/internal/domain"
)

type Config struct {
	ServiceName        string
	OveragePriceCents  int64
	CreatorShare       decimal.Decimal
	TierCallLimits     map[domain.Tier]int64
	ReasonerCredential string
	PackageCacheTTL    time.Duration
	SearchCacheTTL     time.Duration
	EventDedupTTL      time.Duration
}

type CreatePackageRequest struct {
	Slug         string          `json:"slug"`
	Version      string          `json:"version"`
	DisplayName  string          `json:"display_name"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Maturity     string          `json:"maturity"`
	Tags         []string        `json:"tags"`
	PriceUsd     decimal.Decimal `json:"price_usd"`
	License      string          `json:"license"`
	RequiredTier int             `json:"required_tier"`
}

type UpdatePackageRequest struct {
	Version      *string          `json:"version,omitempty"`
	DisplayName  *string          `json:"display_name,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Category     *string          `json:"category,omitempty"`
	Maturity     *string          `json:"maturity,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	PriceUsd     *decimal.Decimal `json:"price_usd,omitempty"`
	License      *string          `json:"license,omitempty"`
	RequiredTier *int             `json:"required_tier,omitempty"`
}

type SearchPackagesRequest struct {
	Query       string
	Category    string
	License     string
	Maturity    string
	Tags        []string
	MinRating   float64
	MaxPriceUsd *decimal.Decimal
	Sort        string
	Limit       int
	Offset      int
}

type SearchPackagesResponse struct {
	Items []domain.Package `json:"items"`
	Total int64            `json:"total"`
}

type RatePackageRequest struct {
	Rating int `json:"rating"`
}

type CreateMintRequest struct {
	PackageRef            string          `json:"package"`
	Rarity                string          `json:"rarity"`
	MaxEditions           *int            `json:"max_editions,omitempty"`
	CreatorRoyaltyPercent decimal.Decimal `json:"creator_royalty_percent"`
	GraduationAttestation string          `json:"graduation_attestation,omitempty"`
}

type InstallRequest struct {
	PackageRef string         `json:"package"`
	AgentID    string         `json:"agent_id,omitempty"`
	Enabled    *bool          `json:"enabled,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
}

type UpsertKnowledgeRequest struct {
	PlaintextRules string `json:"plaintextRules"`
}

type KnowledgeResponse struct {
	PackageID   uuid.UUID `json:"package_id"`
	ContentHash string    `json:"content_hash"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

type ReadKnowledgeResponse struct {
	PackageID      uuid.UUID `json:"package_id"`
	PlaintextRules string    `json:"plaintextRules"`
	ContentHash    string    `json:"content_hash"`
	Version        int       `json:"version"`
}

type InvokeRequest struct {
	Query              string `json:"query"`
	ReasonerCredential string `json:"reasoner_credential,omitempty"`
}

type InvokeResponse struct {
	Conclusion    string              `json:"conclusion"`
	Mode          domain.ReasonerMode `json:"mode"`
	PrivacyNotice string              `json:"privacyNotice"`
	InferenceMs   int64               `json:"inference_ms"`
	CostUsd       decimal.Decimal     `json:"cost_usd"`
	IsOverage     bool                `json:"is_overage"`
}

// subscriptionEventData is the payload of billing.subscription_updated and
// billing.subscription_canceled events emitted by the billing system.
// calls_limit is optional; when the billing system omits it, the
// per-tier quota configured for this service applies.
type subscriptionEventData struct {
	UserID      string `json:"user_id"`
	Tier        string `json:"tier"`
	Status      string `json:"status"`
	CallsLimit  *int64 `json:"calls_limit,omitempty"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

type inboundEventEnvelope struct {
	EventID    string                `json:"event_id"`
	EventType  string                `json:"event_type"`
	OccurredAt string                `json:"occurred_at"`
	Data       subscriptionEventData `json:"data"`
}
