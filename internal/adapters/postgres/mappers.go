package postgres

import (
	"encoding/json"
	"time"

	"github.com/skillforge/marketplace/internal/domain"
)

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func msToTimePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := msToTime(*ms)
	return &t
}

func decodeTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeConfig(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil
	}
	return cfg
}

func encodeConfig(cfg map[string]any) string {
	if len(cfg) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func toDomainPackage(rec packageModel) domain.Package {
	rating := 0.0
	if rec.RatingCount > 0 {
		rating = float64(rec.RatingSum) / float64(rec.RatingCount)
	}
	return domain.Package{
		ID:           rec.PackageID,
		Slug:         rec.Slug,
		Version:      rec.Version,
		DisplayName:  rec.DisplayName,
		Description:  rec.Description,
		Category:     rec.Category,
		Maturity:     rec.Maturity,
		Tags:         decodeTags(rec.Tags),
		AuthorUserID: rec.AuthorUserID,
		PriceUsd:     rec.PriceUsd,
		License:      rec.License,
		RequiredTier: rec.RequiredTier,
		Status:       domain.PackageStatus(rec.Status),
		InstallCount: rec.InstallCount,
		Rating:       rating,
		RatingCount:  rec.RatingCount,
		CreatedAt:    msToTime(rec.CreatedAtMs),
		UpdatedAt:    msToTime(rec.UpdatedAtMs),
	}
}

func toDomainMint(rec mintModel) domain.Mint {
	return domain.Mint{
		PackageID:             rec.PackageID,
		Rarity:                domain.Rarity(rec.Rarity),
		MaxEditions:           rec.MaxEditions,
		MintedCount:           rec.MintedCount,
		CreatorID:             rec.CreatorID,
		CreatorRoyaltyPercent: rec.CreatorRoyaltyPercent,
		CreatedAt:             msToTime(rec.CreatedAtMs),
	}
}

func toDomainInstallation(rec installationModel) domain.Installation {
	return domain.Installation{
		ID:            rec.InstallationID,
		PackageID:     rec.PackageID,
		UserID:        rec.UserID,
		AgentID:       rec.AgentID,
		Version:       rec.Version,
		Status:        domain.InstallationStatus(rec.Status),
		Enabled:       rec.Enabled,
		Config:        decodeConfig(rec.Config),
		InstalledAt:   msToTime(rec.InstalledAtMs),
		UninstalledAt: msToTimePtr(rec.UninstalledAtMs),
	}
}

func toDomainRoyaltyEntry(rec royaltyLedgerModel) domain.RoyaltyLedgerEntry {
	return domain.RoyaltyLedgerEntry{
		ID:               rec.EntryID,
		PackageID:        rec.PackageID,
		CreatorID:        rec.CreatorID,
		BuyerID:          rec.BuyerID,
		InstallationID:   rec.InstallationID,
		GrossAmountUsd:   rec.GrossAmountUsd,
		RoyaltyAmountUsd: rec.RoyaltyAmountUsd,
		RoyaltyPercent:   rec.RoyaltyPercent,
		CreatedAt:        msToTime(rec.CreatedAtMs),
	}
}

func toDomainKnowledge(rec knowledgeModel) domain.EncryptedKnowledge {
	return domain.EncryptedKnowledge{
		ID:          rec.KnowledgeID,
		PackageID:   rec.PackageID,
		WrappedDek:  rec.WrappedDek,
		Ciphertext:  rec.Ciphertext,
		ContentHash: rec.ContentHash,
		Version:     rec.Version,
		IsActive:    rec.IsActive,
		CreatedAt:   msToTime(rec.CreatedAtMs),
	}
}

func toDomainSubscription(rec subscriptionModel) domain.Subscription {
	return domain.Subscription{
		ID:          rec.SubscriptionID,
		UserID:      rec.UserID,
		Tier:        domain.Tier(rec.Tier),
		Status:      domain.SubscriptionStatus(rec.Status),
		CallsUsed:   rec.CallsUsed,
		CallsLimit:  rec.CallsLimit,
		PeriodStart: msToTime(rec.PeriodStartMs),
		PeriodEnd:   msToTime(rec.PeriodEndMs),
	}
}

func toDomainUsageEntry(rec usageLedgerModel) domain.UsageLedgerEntry {
	return domain.UsageLedgerEntry{
		ID:                rec.EntryID,
		UserID:            rec.UserID,
		PackageID:         rec.PackageID,
		SubscriptionID:    rec.SubscriptionID,
		CostUsd:           rec.CostUsd,
		CreatorRoyaltyUsd: rec.CreatorRoyaltyUsd,
		IsOverage:         rec.IsOverage,
		CreatedAt:         msToTime(rec.CreatedAtMs),
	}
}

func toDomainInvocationEntry(rec invocationLogModel) domain.InvocationLogEntry {
	return domain.InvocationLogEntry{
		Seq:            rec.Seq,
		PackageID:      rec.PackageID,
		CallerID:       rec.CallerID,
		InferenceMs:    rec.InferenceMs,
		ConclusionHash: rec.ConclusionHash,
		PrevHash:       rec.PrevHash,
		EventHash:      rec.EventHash,
		CreatedAt:      msToTime(rec.CreatedAtMs),
	}
}
