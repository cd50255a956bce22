// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts entered by users
// and formatting base-currency amounts for display.
package core

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the base currency every amount is normalised to.
const DefaultCurrency = "EUR"

// ParseAmount converts a decimal string to a base-currency amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half away from zero on the third decimal place. Zero is allowed; negative
// values and malformed input are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
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
	// NewFromString accepts exponents; amounts are plain decimals.
	if strings.ContainsAny(s, "eE") {
		return 0, ErrInvalidAmount
	}
	return d.Round(2).InexactFloat64(), nil
}

// RoundCents rounds a float amount to two decimals through decimal arithmetic.
func RoundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Cents converts an amount to integer minor units.
func Cents(v float64) int64 {
	return decimal.NewFromFloat(v).Shift(2).Round(0).IntPart()
}

// FormatMoney formats an amount in the given currency for display.
// Unknown or empty currency codes fall back to DefaultCurrency.
func FormatMoney(v float64, currency string) string {
	if currency == "" || money.GetCurrency(currency) == nil {
		currency = DefaultCurrency
	}
	return money.New(Cents(v), currency).Display()
}
