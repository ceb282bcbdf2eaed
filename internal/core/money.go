// Package core holds the ledger domain types and the money helpers used to
// move amounts between their decimal wire form and integer cents.
package core

import (
	"math"
	"strconv"
	"strings"
)

// maxCents keeps amounts well inside the range where float64 still
// represents every cent exactly.
const maxCents = 1 << 53

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("12.344") -> 1234, nil (rounds down)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
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
	if !isASCIIDigits(intPart) || !isASCIIDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if iv > maxCents/100 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 || cents > maxCents {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// isASCIIDigits reports whether s holds only 0-9. Other Unicode digits
// would break the byte arithmetic below.
func isASCIIDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// CentsFromNumber converts a JSON number literal to positive cents.
// Plain decimals go through ParseDecimalToCents so no float rounding is
// involved; exponent forms such as 1e3 fall back to float parsing.
func CentsFromNumber(lit string) (int64, error) {
	lit = strings.TrimSpace(lit)
	if !strings.ContainsAny(lit, "eE") {
		return ParseDecimalToCents(lit)
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, ErrInvalidAmount
	}
	cents := math.Round(f * 100)
	if cents <= 0 || cents > maxCents {
		return 0, ErrInvalidAmount
	}
	return int64(cents), nil
}

// Decimal renders the amount in currency units without trailing zeros,
// e.g. 123450 -> "1234.5", -30000 -> "-300".
func (m Money) Decimal() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10)
	if rem := cents % 100; rem != 0 {
		frac := strconv.FormatInt(rem+100, 10)[1:]
		s += "." + strings.TrimSuffix(frac, "0")
	}
	if neg {
		return "-" + s
	}
	return s
}
