// Package core provides money parsing and display utilities.
//
// The projection engine works in float64 and never rounds; rounding to cents
// happens only here, at the display and export edge.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a float amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding to cents. Negative and zero values are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return d.InexactFloat64(), nil
}

// RoundCents rounds v half away from zero to two decimal places.
func RoundCents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// FormatAmount renders v with exactly two decimals, e.g. "-12.50".
func FormatAmount(v float64) string {
	return RoundCents(v).StringFixed(2)
}

// FormatBalance renders an optional balance, using "-" when unset.
func FormatBalance(b *float64) string {
	if b == nil {
		return "-"
	}
	return FormatAmount(*b)
}
