// Package core holds the expense domain model and price handling.
//
// Prices cross the application boundary as text and stay text at rest; they
// are parsed into exact decimals only for validation and aggregation.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice validates a boundary price string and returns its decimal value.
//
// The string must be non-empty after trimming, must use a period as decimal
// separator (a comma is rejected outright, not normalized) and must parse as
// a non-negative decimal number.
//
// Examples:
//
//	ParsePrice("3.50")  -> 3.5, nil
//	ParsePrice("3,50")  -> ErrCommaPrice
//	ParsePrice("-1")    -> ErrNegativePrice
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmptyPrice
	}
	if strings.Contains(s, ",") {
		return decimal.Zero, ErrCommaPrice
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativePrice
	}
	return d, nil
}

// FormatAmount renders a decimal total with exactly two fraction digits,
// e.g. 30.5 -> "30.50".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
