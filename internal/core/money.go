// Package core holds the canonical transaction model shared by every source
// adapter and the ledger store.
//
// This file contains amount parsing: statement and email amounts arrive as
// strings ("12.34", "1,234.56", "-45.00") and are normalized into signed cents.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmountToCents converts a decimal string into signed cents with half-up
// rounding on the third decimal place.
//
// Both separators are accepted: "1,234.56" reads the comma as a thousands
// separator, "12,34" reads it as a decimal comma. Charges are positive,
// credits negative; an explicit leading sign is honored.
//
// Examples:
//
//	ParseAmountToCents("12.34")    -> 1234, nil
//	ParseAmountToCents("-12,34")   -> -1234, nil
//	ParseAmountToCents("1,234.5")  -> 123450, nil
//	ParseAmountToCents("12.346")   -> 1235, nil (rounds up)
func ParseAmountToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, ErrInvalidAmount
	}

	// Comma is a thousands separator when a dot is also present, otherwise a
	// decimal comma.
	if strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}

	// First two fractional digits, half-up rounding on the third.
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return cents, nil
}

// Major returns the currency-major value as a float64, for display only.
// Calculations stay in cents to avoid floating-point drift.
func (m Money) Major() float64 {
	return float64(m.Cents) / 100.0
}

// Neg returns the amount with its sign flipped. Statement parsers use this to
// turn issuer-signed charges into ledger-signed ones.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}
