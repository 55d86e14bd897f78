package domain

type Tier string

const (
	TierFree      Tier = "free"
	TierPro       Tier = "pro"
	TierEpic      Tier = "epic"
	TierLegendary Tier = "legendary"
)

var tierRanks = map[Tier]int{
	TierFree:      0,
	TierPro:       1,
	TierEpic:      2,
	TierLegendary: 3,
}

// Rank returns the numeric rank of a tier. Unknown tiers rank as free.
func (t Tier) Rank() int {
	return tierRanks[t]
}

func (t Tier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// ParseTier normalizes a tier string, falling back to free for anything
// unrecognized so that a stale token never grants extra access.
func ParseTier(raw string) Tier {
	t := Tier(raw)
	if !t.Valid() {
		return TierFree
	}
	return t
}
