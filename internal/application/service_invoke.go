package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

type invocationEventData struct {
	PackageID string `json:"package_id"`
	CallerID  string `json:"caller_id"`
	Mode      string `json:"mode"`
	IsOverage bool   `json:"is_overage"`
}

// Invoke runs the invocation pipeline: package and knowledge resolution,
// quota check, scoped decryption and reasoning, hash-chained audit append,
// metering. A reasoner failure aborts before any ledger or log write, so the
// caller is never billed for a call that produced nothing.
func (s *Service) Invoke(ctx context.Context, claims ports.AuthClaims, packageRef string, req InvokeRequest) (InvokeResponse, error) {
	caller, err := callerID(claims)
	if err != nil {
		return InvokeResponse{}, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return InvokeResponse{}, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}

	pkg, err := s.packages.GetBySlugOrID(ctx, packageRef)
	if err != nil {
		return InvokeResponse{}, err
	}
	if pkg.Status != domain.PackageStatusActive {
		return InvokeResponse{}, fmt.Errorf("%w: package is not active", domain.ErrNotFound)
	}
	tier := domain.ParseTier(claims.Tier)
	if tier.Rank() < pkg.RequiredTier {
		return InvokeResponse{}, domain.TierError{RequiredTier: pkg.RequiredTier, CurrentTier: tier}
	}

	knowledge, err := s.knowledge.GetActiveByPackageID(ctx, pkg.ID)
	if err != nil {
		return InvokeResponse{}, err
	}

	decision, err := s.checkQuota(ctx, caller, tier)
	if err != nil {
		return InvokeResponse{}, err
	}
	if !decision.Allowed {
		return InvokeResponse{}, domain.ErrQuotaExceeded
	}

	mode, credential, reasoner := s.selectReasoner(req.ReasonerCredential)

	var result ports.ReasonResult
	err = s.secure.WithSecureContext(
		func() ([]byte, error) { return s.envelope.UnwrapDEK(knowledge.WrappedDek) },
		func(dek []byte) error {
			rules, err := s.envelope.DecryptKnowledge(knowledge.Ciphertext, dek)
			if err != nil {
				return err
			}
			defer s.secure.Zeroize(rules)
			result, err = reasoner.Conclude(ctx, ports.ReasonRequest{
				Credential: credential,
				Rules:      rules,
				Query:      req.Query,
			})
			return err
		},
	)
	if err != nil {
		s.logCryptoFailure(ctx, "invoke", pkg, caller.String(), err)
		return InvokeResponse{}, err
	}

	conclusionHash := domain.ConclusionHash(result.Conclusion)
	inferenceMs := result.InferenceMs
	if _, err := s.invocationLog.Append(ctx, ports.AppendInvocationParams{
		PackageID:      pkg.ID,
		CallerID:       caller,
		InferenceMs:    &inferenceMs,
		ConclusionHash: conclusionHash,
		CreatedAt:      s.nowFn(),
	}); err != nil {
		return InvokeResponse{}, err
	}

	if _, err := s.recordInvocation(ctx, caller, pkg.ID, decision); err != nil {
		return InvokeResponse{}, err
	}

	s.enqueueEvent(ctx, "skill.invoked", pkg.ID.String(), invocationEventData{
		PackageID: pkg.ID.String(),
		CallerID:  caller.String(),
		Mode:      string(mode),
		IsOverage: decision.IsOverage,
	})

	return InvokeResponse{
		Conclusion:    result.Conclusion,
		Mode:          mode,
		PrivacyNotice: privacyNotice(mode),
		InferenceMs:   result.InferenceMs,
		CostUsd:       decision.CostUsd,
		IsOverage:     decision.IsOverage,
	}, nil
}

// selectReasoner applies credential precedence: a caller-supplied override
// wins, then the process-wide credential, then the local offline reasoner.
func (s *Service) selectReasoner(override string) (domain.ReasonerMode, string, ports.Reasoner) {
	override = strings.TrimSpace(override)
	switch {
	case override != "" && s.remote != nil:
		return domain.ModeTenantCredential, override, s.remote
	case s.cfg.ReasonerCredential != "" && s.remote != nil:
		return domain.ModePlatform, s.cfg.ReasonerCredential, s.remote
	default:
		return domain.ModeOffline, "", s.offline
	}
}

func privacyNotice(mode domain.ReasonerMode) string {
	switch mode {
	case domain.ModeTenantCredential:
		return "Reasoning was performed under the credential supplied with this request; the platform credential was not used."
	case domain.ModePlatform:
		return "Reasoning was performed under the platform's reasoning credential."
	default:
		return "No external reasoning service was contacted; the conclusion was derived locally."
	}
}

func (s *Service) ListInvocations(ctx context.Context, claims ports.AuthClaims, packageRef string, limit, offset int) ([]domain.InvocationLogEntry, error) {
	caller, err := callerID(claims)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetBySlugOrID(ctx, packageRef)
	if err != nil {
		return nil, err
	}
	if pkg.AuthorUserID != caller && !claims.Admin() {
		return nil, fmt.Errorf("%w: only the package author may read the invocation log", domain.ErrForbidden)
	}
	limit, offset, err = clampPagination(limit, offset)
	if err != nil {
		return nil, err
	}
	items, err := s.invocationLog.ListByPackage(ctx, pkg.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.InvocationLogEntry{}
	}
	return items, nil
}
