// Package core provides money formatting utilities.
//
// Amounts are accumulated as float64 at full precision. Rounding to two
// decimals happens only here, when a value is turned into text.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencySymbol prefixes every displayed amount.
const CurrencySymbol = "₹"

// Infinity is shown for a total that overflowed float64.
const Infinity = "∞"

// FormatAmount renders v with exactly two decimals (e.g. "80.00").
// Overflowed values render as "∞" or "-∞" and NaN as "0.00".
func FormatAmount(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return Infinity
	case math.IsInf(v, -1):
		return "-" + Infinity
	case math.IsNaN(v):
		return "0.00"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatMoney renders v with the currency symbol, sign first
// (e.g. "₹80.00", "-₹20.00").
func FormatMoney(v float64) string {
	s := FormatAmount(v)
	if strings.HasPrefix(s, "-") {
		if strings.Trim(s[1:], "0.") == "" {
			return CurrencySymbol + s[1:]
		}
		return "-" + CurrencySymbol + s[1:]
	}
	return CurrencySymbol + s
}

// ParseAmount parses a user-entered amount. It accepts a decimal comma and
// surrounding whitespace; the sign is preserved so callers can reject it.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return f, nil
}

// Percent returns part/total*100 rounded to one decimal, or 0 for a zero or
// non-finite total.
func Percent(part, total float64) float64 {
	if total == 0 || !finite(part) || !finite(total) {
		return 0
	}
	p, _ := decimal.NewFromFloat(part).Div(decimal.NewFromFloat(total)).Mul(decimal.NewFromInt(100)).Round(1).Float64()
	return p
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
