package application

import (
	"context"
	"fmt"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

const maxKnowledgeBytes = 1 << 20

// UpsertKnowledge encrypts rule plaintext server-side and stores the result.
// The plaintext only exists inside this call and is never logged.
func (s *Service) UpsertKnowledge(ctx context.Context, claims ports.AuthClaims, packageRef string, req UpsertKnowledgeRequest) (KnowledgeResponse, error) {
	caller, err := callerID(claims)
	if err != nil {
		return KnowledgeResponse{}, err
	}
	if req.PlaintextRules == "" {
		return KnowledgeResponse{}, fmt.Errorf("%w: plaintextRules is required", domain.ErrInvalidInput)
	}
	if len(req.PlaintextRules) > maxKnowledgeBytes {
		return KnowledgeResponse{}, fmt.Errorf("%w: plaintextRules exceeds %d bytes", domain.ErrInvalidInput, maxKnowledgeBytes)
	}

	pkg, err := s.packages.GetBySlugOrID(ctx, packageRef)
	if err != nil {
		return KnowledgeResponse{}, err
	}
	if pkg.AuthorUserID != caller {
		return KnowledgeResponse{}, fmt.Errorf("%w: only the package author may manage knowledge", domain.ErrForbidden)
	}

	plaintext := []byte(req.PlaintextRules)
	defer s.secure.Zeroize(plaintext)
	hash := contentHash(plaintext)

	var wrapped, ciphertext []byte
	err = s.secure.WithSecureContext(s.envelope.GenerateDEK, func(dek []byte) error {
		var err error
		if wrapped, err = s.envelope.WrapDEK(dek); err != nil {
			return err
		}
		ciphertext, err = s.envelope.EncryptKnowledge(plaintext, dek)
		return err
	})
	if err != nil {
		return KnowledgeResponse{}, err
	}

	stored, err := s.knowledge.UpsertActive(ctx, ports.UpsertKnowledgeParams{
		PackageID:   pkg.ID,
		WrappedDek:  wrapped,
		Ciphertext:  ciphertext,
		ContentHash: hash,
		Now:         s.nowFn(),
	})
	if err != nil {
		return KnowledgeResponse{}, err
	}
	return KnowledgeResponse{
		PackageID:   stored.PackageID,
		ContentHash: stored.ContentHash,
		Version:     stored.Version,
		CreatedAt:   stored.CreatedAt,
	}, nil
}

// ReadKnowledge decrypts the active knowledge for its author.
func (s *Service) ReadKnowledge(ctx context.Context, claims ports.AuthClaims, packageRef string) (ReadKnowledgeResponse, error) {
	caller, err := callerID(claims)
	if err != nil {
		return ReadKnowledgeResponse{}, err
	}
	pkg, err := s.packages.GetBySlugOrID(ctx, packageRef)
	if err != nil {
		return ReadKnowledgeResponse{}, err
	}
	if pkg.AuthorUserID != caller {
		return ReadKnowledgeResponse{}, fmt.Errorf("%w: only the package author may read knowledge", domain.ErrForbidden)
	}
	k, err := s.knowledge.GetActiveByPackageID(ctx, pkg.ID)
	if err != nil {
		return ReadKnowledgeResponse{}, err
	}

	var plaintext string
	err = s.secure.WithSecureContext(
		func() ([]byte, error) { return s.envelope.UnwrapDEK(k.WrappedDek) },
		func(dek []byte) error {
			raw, err := s.envelope.DecryptKnowledge(k.Ciphertext, dek)
			if err != nil {
				return err
			}
			plaintext = string(raw)
			s.secure.Zeroize(raw)
			return nil
		},
	)
	if err != nil {
		s.logCryptoFailure(ctx, "read_knowledge", pkg, caller.String(), err)
		return ReadKnowledgeResponse{}, err
	}

	return ReadKnowledgeResponse{
		PackageID:      pkg.ID,
		PlaintextRules: plaintext,
		ContentHash:    k.ContentHash,
		Version:        k.Version,
	}, nil
}

// logCryptoFailure records who hit a tag mismatch on which package. The
// caller still only sees a generic internal error.
func (s *Service) logCryptoFailure(ctx context.Context, operation string, pkg domain.Package, caller string, err error) {
	if !isCryptoAuthFailure(err) {
		return
	}
	s.logger.ErrorContext(ctx, "crypto auth failure",
		"module", "application",
		"layer", "service",
		"operation", operation,
		"outcome", "failure",
		"package_id", pkg.ID.String(),
		"package_slug", pkg.Slug,
		"caller_id", caller,
	)
}
