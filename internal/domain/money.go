package domain

import "github.com/shopspring/decimal"

// Money columns are decimal(10,4); every derived amount is rounded to four
// places, half away from zero.
const moneyScale = 4

// RoyaltyAmount computes the creator's cut of a gross sale amount given a
// royalty percentage in [0,100].
func RoyaltyAmount(gross, royaltyPercent decimal.Decimal) decimal.Decimal {
	return gross.Mul(royaltyPercent).Div(decimal.NewFromInt(100)).Round(moneyScale)
}

// CreatorShare computes the creator's share of a per-call cost given a share
// fraction in [0,1].
func CreatorShare(cost, share decimal.Decimal) decimal.Decimal {
	return cost.Mul(share).Round(moneyScale)
}

// CentsToUsd converts an integer cent amount to a decimal dollar amount.
func CentsToUsd(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
