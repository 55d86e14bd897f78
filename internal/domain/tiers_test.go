package domain

import "testing"

func TestTierRanks(t *testing.T) {
	t.Parallel()

	if TierFree.Rank() != 0 || TierPro.Rank() != 1 || TierEpic.Rank() != 2 || TierLegendary.Rank() != 3 {
		t.Fatalf("unexpected tier ranks: %d %d %d %d",
			TierFree.Rank(), TierPro.Rank(), TierEpic.Rank(), TierLegendary.Rank())
	}
}

func TestParseTierFallsBackToFree(t *testing.T) {
	t.Parallel()

	if ParseTier("pro") != TierPro {
		t.Fatalf("expected pro")
	}
	if ParseTier("platinum") != TierFree {
		t.Fatalf("expected unknown tier to parse as free")
	}
	if ParseTier("") != TierFree {
		t.Fatalf("expected empty tier to parse as free")
	}
}
