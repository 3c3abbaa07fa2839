// Package money holds the rounding rules shared by every monetary field of a quote.
package money

import "github.com/shopspring/decimal"

// Places is the currency precision used for all amounts.
const Places = 2

// Zero is the canonical zero amount.
var Zero = decimal.Zero

var thousand = decimal.NewFromInt(1000)

// Round rounds half away from zero to currency precision. Amounts are never
// negative, so this is round-half-up.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(Places)
}

// FromFloat converts a configured rate into a decimal without binary noise.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// PerThousand prices count items at rate per 1000 items and rounds the result.
func PerThousand(count int, rate decimal.Decimal) decimal.Decimal {
	return PerThousandOf(decimal.NewFromInt(int64(count)), rate)
}

// PerThousandOf is PerThousand for fractional quantities such as allocated
// shares of a flyer count.
func PerThousandOf(qty, rate decimal.Decimal) decimal.Decimal {
	if qty.Sign() <= 0 {
		return Zero
	}
	return Round(qty.Mul(rate).Div(thousand))
}

// RatePerThousand returns the effective rate per 1000 items for amount.
func RatePerThousand(amount decimal.Decimal, count int) decimal.Decimal {
	if count <= 0 {
		return Zero
	}
	return Round(amount.Mul(thousand).Div(decimal.NewFromInt(int64(count))))
}

// Sum adds the values and rounds once at the boundary.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return Round(total)
}
