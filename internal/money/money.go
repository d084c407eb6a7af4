// Package money converts between decimal major-unit amounts and the integer
// minor units used everywhere else in the reconciler.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount       = errors.New("amount must not be negative")
	ErrFractionalMinorUnits = errors.New("amount has more precision than the currency's minor unit")
	ErrAmountOverflow       = errors.New("amount does not fit in 64-bit minor units")
)

// exponents maps ISO-4217 codes to the number of minor-unit digits.
// Currencies not listed use two.
var exponents = map[string]int32{
	"KES": 2, // Kenyan Shilling
	"TZS": 2, // Tanzanian Shilling
	"UGX": 0, // Ugandan Shilling
	"RWF": 0, // Rwandan Franc
	"NGN": 2, // Nigerian Naira
	"GHS": 2, // Ghanaian Cedi
	"ZAR": 2, // South African Rand
	"XOF": 0, // West African CFA Franc
	"USD": 2,
	"EUR": 2,
	"JPY": 0,
}

const defaultExponent int32 = 2

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Exponent returns the minor-unit exponent for a currency code.
func Exponent(currency string) int32 {
	if e, ok := exponents[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return e
	}
	return defaultExponent
}

// ParseMajor parses a decimal amount in major units ("4500.50") into minor
// units. Amounts that would need rounding are rejected.
func ParseMajor(s string, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d, currency)
}

// FromDecimal converts a major-unit decimal into minor units.
func FromDecimal(d decimal.Decimal, currency string) (int64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%s: %w", d.String(), ErrNegativeAmount)
	}
	minor := d.Shift(Exponent(currency))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%s %s: %w", d.String(), currency, ErrFractionalMinorUnits)
	}
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%s: %w", d.String(), ErrAmountOverflow)
	}
	return minor.IntPart(), nil
}

// ToDecimal converts minor units back to a major-unit decimal.
func ToDecimal(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// Format renders minor units for people, e.g. "KES 4500.00".
func Format(minor int64, currency string) string {
	exp := Exponent(currency)
	s := ToDecimal(minor, currency).StringFixed(exp)
	if currency == "" {
		return s
	}
	return strings.ToUpper(currency) + " " + s
}
