package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var currencyMarks = []string{"INR", "USD", "EUR", "GBP", "Rs.", "Rs", "₹", "$", "€", "£"}

// ParseAmount reads a money value written with '.' as decimal point and ','
// as thousands separator. Parenthesised values are negative.
func ParseAmount(s string) (decimal.Decimal, error) {
	return ParseAmountSeparators(s, ".", ",")
}

func ParseAmountSeparators(s, decimalSep, thousandsSep string) (decimal.Decimal, error) {
	value := strings.TrimSpace(s)
	if value == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		negative = true
		value = strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
	}
	for _, mark := range currencyMarks {
		value = strings.ReplaceAll(value, mark, "")
	}
	if thousandsSep != "" {
		value = strings.ReplaceAll(value, thousandsSep, "")
	}
	if decimalSep != "" && decimalSep != "." {
		value = strings.ReplaceAll(value, decimalSep, ".")
	}
	value = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value)
	if value == "" {
		return decimal.Zero, fmt.Errorf("amount %q has no digits", s)
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// IsBlankAmount reports whether a cell should be treated as an absent value.
func IsBlankAmount(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "-", "--", "0", "0.0", "0.00":
		return true
	}
	return false
}
