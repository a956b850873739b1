// Package numerals folds Arabic-script digits and separators into ASCII.
package numerals

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrEmptyAmount is returned by ParseAmount for blank input.
var ErrEmptyAmount = errors.New("empty amount")

var digitReplacer = strings.NewReplacer(
	// Arabic-Indic
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"٫", ".", "٬", ",",
	// Extended Arabic-Indic (Persian/Urdu)
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
)

// Normalize replaces Arabic-Indic digits with ASCII digits, the Arabic
// decimal separator with '.' and the Arabic thousands separator with ','.
// Every other rune is left as is, so Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return s
	}
	return digitReplacer.Replace(s)
}

// CollapseSpace folds whitespace runs into single spaces and trims the ends.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseAmount parses a monetary amount that may carry thousands separators,
// spaces or Arabic-Indic digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := CleanAmount(s)
	if cleaned == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// CleanAmount strips thousands separators and spaces after numeral folding.
func CleanAmount(s string) string {
	s = Normalize(s)
	s = strings.ReplaceAll(s, ",", "")
	return strings.Join(strings.Fields(s), "")
}

// IsDigits reports whether s is non-empty and made only of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
