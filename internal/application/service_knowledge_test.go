package application

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/skillforge/marketplace/internal/domain"
)

func TestKnowledgeUpsertAndReadBack(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "knowledge-skill", "0")

	const rules = `when churn_risk > 0.8 then escalate`
	resp, err := env.service.UpsertKnowledge(context.Background(), authorClaims(author), pkg.Slug, UpsertKnowledgeRequest{
		PlaintextRules: rules,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if resp.Version != 1 {
		t.Fatalf("expected version 1, got %d", resp.Version)
	}

	env.store.mu.Lock()
	stored := env.store.knowledge[pkg.ID]
	env.store.mu.Unlock()
	if bytes.Contains(stored.Ciphertext, []byte(rules)) {
		t.Fatalf("stored ciphertext contains plaintext")
	}

	read, err := env.service.ReadKnowledge(context.Background(), authorClaims(author), pkg.Slug)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if read.PlaintextRules != rules {
		t.Fatalf("round trip mismatch: %q", read.PlaintextRules)
	}
}

func TestKnowledgeUpsertBumpsVersion(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "versioned-skill", "0")

	env.mustUpsertKnowledge(t, author, pkg, "v1 rules")
	resp, err := env.service.UpsertKnowledge(context.Background(), authorClaims(author), pkg.Slug, UpsertKnowledgeRequest{
		PlaintextRules: "v2 rules",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if resp.Version != 2 {
		t.Fatalf("expected version 2, got %d", resp.Version)
	}
}

func TestKnowledgeAuthorOnly(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "private-skill", "0")
	env.mustUpsertKnowledge(t, author, pkg, "secret rules")

	stranger := authorClaims(uuid.New())
	if _, err := env.service.UpsertKnowledge(context.Background(), stranger, pkg.Slug, UpsertKnowledgeRequest{
		PlaintextRules: "hijack",
	}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden upsert, got %v", err)
	}
	if _, err := env.service.ReadKnowledge(context.Background(), stranger, pkg.Slug); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden read, got %v", err)
	}
}

func TestKnowledgeRejectsEmptyRules(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	author := uuid.New()
	pkg := env.mustCreatePackage(t, author, "empty-rules", "0")

	if _, err := env.service.UpsertKnowledge(context.Background(), authorClaims(author), pkg.Slug, UpsertKnowledgeRequest{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
