package services

import "github.com/shopspring/decimal"

// AmountToCents normalizes a monetary amount to integer minor-currency
// units. Each side of a comparison is rounded independently; amounts are
// never compared as floats.
func AmountToCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func amountsMatch(a, b float64) bool {
	return AmountToCents(a) == AmountToCents(b)
}
