package pricing

import (
	"errors"
	"slices"

	"sms-gateway/internal/apperr"

	"github.com/shopspring/decimal"
)

var (
	ErrNoActiveTier   = errors.New("no active tier")
	ErrNoEligibleTier = errors.New("amount too low")
)

// Select picks, among the active tiers, the one that credits the most SMS for
// amount. Ties go to the cheaper tier. currency only appears in the error text.
func Select(tiers []Tier, amount decimal.Decimal, currency string) (Selection, error) {
	active := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.Active && t.PricePerSms.IsPositive() {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return Selection{}, apperr.BusinessRule(ErrNoActiveTier, "no active SMS package tier available")
	}
	slices.SortStableFunc(active, func(a, b Tier) int { return a.PricePerSms.Cmp(b.PricePerSms) })

	var (
		best    Tier
		credits int64
	)
	for _, t := range active {
		n := creditsFor(amount, t.PricePerSms)
		if t.Contains(n) && n > credits {
			best, credits = t, n
		}
	}
	if credits < 1 {
		lowest := active[0]
		minAmount := lowest.PricePerSms.Mul(decimal.NewFromInt(int64(lowest.MinSmsCount)))
		return Selection{}, apperr.BusinessRule(ErrNoEligibleTier,
			"amount too low: minimum amount is %s %s for %d SMS", minAmount.StringFixed(2), currency, lowest.MinSmsCount)
	}
	return Selection{Tier: best, Amount: amount, Credits: credits}, nil
}

// creditsFor is floor(amount / price) for positive operands.
func creditsFor(amount, price decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	q, _ := amount.QuoRem(price, 0)
	return q.IntPart()
}
