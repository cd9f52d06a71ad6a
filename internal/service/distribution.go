package service

import (
	"github.com/shopspring/decimal"
)

// SplitShipping divides shipping across n orders. Every order but the last gets
// round(shipping/n, 2); the last absorbs the remainder so the parts sum to shipping.
func SplitShipping(shipping decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []decimal.Decimal{shipping.Round(2)}
	}

	portion := shipping.Div(decimal.NewFromInt(int64(n))).Round(2)
	fees := make([]decimal.Decimal, n)
	applied := decimal.Zero
	for i := 0; i < n-1; i++ {
		fees[i] = portion
		applied = applied.Add(portion)
	}
	fees[n-1] = shipping.Sub(applied).Round(2)
	return fees
}

// SplitDiscount divides discount across orders in proportion to their totals.
// The distributed amount is capped at the sum of totals and the last order absorbs
// the rounding remainder. Earlier portions are clamped to what is left, so no portion
// is negative and the portions sum to the distributed amount. Portions may be zero.
func SplitDiscount(discount decimal.Decimal, totals []decimal.Decimal) []decimal.Decimal {
	portions := make([]decimal.Decimal, len(totals))
	if len(totals) == 0 || !discount.IsPositive() {
		return portions
	}

	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t)
	}
	if !sum.IsPositive() {
		return portions
	}

	remaining := decimal.Min(discount, sum)
	applied := decimal.Zero
	for i, t := range totals {
		if i == len(totals)-1 {
			portions[i] = remaining.Sub(applied).Round(2)
			break
		}
		portions[i] = decimal.Min(remaining.Mul(t).Div(sum).Round(2), remaining.Sub(applied))
		applied = applied.Add(portions[i])
	}
	return portions
}
