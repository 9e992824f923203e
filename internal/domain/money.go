package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativePrice  = errors.New("price must not be negative")
	ErrPricePrecision = errors.New("price is too large")
)

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a decimal price to integer minor units, rounding half
// away from zero: round(price * 100).
func MinorUnits(price decimal.Decimal) (int64, error) {
	if price.IsNegative() {
		return 0, ErrNegativePrice
	}

	minor := price.Mul(hundred).Round(0)
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, ErrPricePrecision
	}

	return minor.IntPart(), nil
}

// ParsePrice parses a decimal price string such as "12.50" into minor units.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}

	return MinorUnits(d)
}

// FormatMinor renders minor units as a two-decimal amount, e.g. 1250 as "12.50".
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
