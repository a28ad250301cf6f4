package settlement

import "github.com/shopspring/decimal"

// Policy selects how much of a purchase's USD value becomes referral
// bonus. The two policies are distinct products and are never merged:
// the simple buy flow pays a flat first-tier rate, the referral-tree
// product pays per-level rates across five levels.
type Policy interface {
	Name() string
	// Rates returns the per-level bonus rates, level 1 first. The direct
	// referrer settled by the purchase pipeline is level 1.
	Rates() []decimal.Decimal
}

// FlatPolicy pays a flat 10% of the purchase USD value to the direct
// referrer.
type FlatPolicy struct{}

func (FlatPolicy) Name() string { return "flat" }

func (FlatPolicy) Rates() []decimal.Decimal {
	return []decimal.Decimal{decimal.NewFromFloat(0.10)}
}

// TieredPolicy pays five referral levels with rates summing to 15%.
type TieredPolicy struct{}

func (TieredPolicy) Name() string { return "tiered" }

func (TieredPolicy) Rates() []decimal.Decimal {
	return []decimal.Decimal{
		decimal.NewFromFloat(0.05),
		decimal.NewFromFloat(0.04),
		decimal.NewFromFloat(0.03),
		decimal.NewFromFloat(0.02),
		decimal.NewFromFloat(0.01),
	}
}

// PolicyByName resolves a configured policy selector; unknown names fall
// back to the flat policy.
func PolicyByName(name string) Policy {
	if name == "tiered" {
		return TieredPolicy{}
	}
	return FlatPolicy{}
}

// secondTierRate is the fraction of every bonus routed to the fixed
// platform wallet, independent of any referral chain.
var secondTierRate = decimal.NewFromFloat(0.10)
