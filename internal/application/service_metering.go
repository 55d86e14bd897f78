package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

// checkQuota prices one call before it runs. Every caller is allowed; the
// decision only determines whether the call is covered by a subscription or
// billed at the overage price.
func (s *Service) checkQuota(ctx context.Context, userID uuid.UUID, tier domain.Tier) (domain.QuotaDecision, error) {
	overage := domain.CentsToUsd(s.cfg.OveragePriceCents)
	overageDecision := domain.QuotaDecision{
		Allowed:    true,
		CostUsd:    overage,
		RoyaltyUsd: domain.CreatorShare(overage, s.cfg.CreatorShare),
		IsOverage:  true,
	}

	if tier == domain.TierFree {
		return overageDecision, nil
	}

	sub, err := s.subscriptions.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return overageDecision, nil
		}
		return domain.QuotaDecision{}, err
	}

	subID := sub.ID
	if sub.Unlimited() || sub.CallsUsed < sub.CallsLimit {
		return domain.QuotaDecision{
			Allowed:        true,
			CostUsd:        decimal.Zero,
			RoyaltyUsd:     decimal.Zero,
			SubscriptionID: &subID,
			IsOverage:      false,
		}, nil
	}

	over := overageDecision
	over.SubscriptionID = &subID
	return over, nil
}

// recordInvocation settles one completed call: a usage ledger row always
// (cost-zero rows feed royalty reporting), and a callsUsed increment only for
// included subscription calls. The increment is unconditional on purpose:
// over-limit detection already happened in checkQuota, so concurrent bursts
// can push the counter at most one past the limit.
func (s *Service) recordInvocation(ctx context.Context, userID, packageID uuid.UUID, decision domain.QuotaDecision) (domain.UsageLedgerEntry, error) {
	entry, err := s.usageLedger.Append(ctx, ports.AppendUsageParams{
		UserID:            userID,
		PackageID:         packageID,
		SubscriptionID:    decision.SubscriptionID,
		CostUsd:           decision.CostUsd,
		CreatorRoyaltyUsd: decision.RoyaltyUsd,
		IsOverage:         decision.IsOverage,
		CreatedAt:         s.nowFn(),
	})
	if err != nil {
		return domain.UsageLedgerEntry{}, err
	}
	if !decision.IsOverage && decision.SubscriptionID != nil {
		if err := s.subscriptions.IncrementCallsUsed(ctx, *decision.SubscriptionID); err != nil {
			return domain.UsageLedgerEntry{}, err
		}
	}
	return entry, nil
}

func (s *Service) ListUsage(ctx context.Context, claims ports.AuthClaims, limit, offset int) ([]domain.UsageLedgerEntry, error) {
	caller, err := callerID(claims)
	if err != nil {
		return nil, err
	}
	limit, offset, err = clampPagination(limit, offset)
	if err != nil {
		return nil, err
	}
	items, err := s.usageLedger.ListByUser(ctx, caller, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.UsageLedgerEntry{}
	}
	return items, nil
}

func (s *Service) ListRoyalties(ctx context.Context, claims ports.AuthClaims, limit, offset int) ([]domain.RoyaltyLedgerEntry, error) {
	caller, err := callerID(claims)
	if err != nil {
		return nil, err
	}
	limit, offset, err = clampPagination(limit, offset)
	if err != nil {
		return nil, err
	}
	items, err := s.royaltyLedger.ListByCreator(ctx, caller, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.RoyaltyLedgerEntry{}
	}
	return items, nil
}
