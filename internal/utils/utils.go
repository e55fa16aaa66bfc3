// Package utils provides common utility functions for data validation.
//
// CoinCap identifies assets by short symbols such as "BTC" or "ETH". The helpers
// here reject symbols that could not be placed into a request path and bring the
// accepted ones into the upper-case form the API expects.
package utils

import (
	"errors"
	"fmt"
	"strings"
)

// Error definitions for validation functions
var (
	ErrNoSymbols      = errors.New("zero symbols requested")
	ErrTooManySymbols = errors.New("too many symbols requested")
	ErrInvalidSymbol  = errors.New("invalid symbol")
)

// MaxSymbolLength bounds the length of a single coin symbol.
const MaxSymbolLength = 32

// ValidateSymbol validates that a coin symbol is non-empty and made only of
// ASCII letters, digits, '-' and '_'.
//
// The validation is case-insensitive; callers normalise with NormalizeSymbol.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol cannot be empty", ErrInvalidSymbol)
	}

	if len(symbol) > MaxSymbolLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidSymbol, symbol, MaxSymbolLength)
	}

	for i, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
			if i == 0 {
				return fmt.Errorf("%w: %q cannot start with %q", ErrInvalidSymbol, symbol, r)
			}
		default:
			return fmt.Errorf("%w: %q contains unsupported character %q", ErrInvalidSymbol, symbol, r)
		}
	}

	return nil
}

// NormalizeSymbol validates symbol and returns its upper-case form.
func NormalizeSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if err := ValidateSymbol(symbol); err != nil {
		return "", err
	}
	return strings.ToUpper(symbol), nil
}

// ValidateSymbols validates a slice of coin symbols and enforces quantity limits.
//
// This function performs two types of validation:
//  1. Quantity validation: Ensures the number of symbols is within acceptable limits
//  2. Format validation: Validates each symbol using ValidateSymbol
//
// A maxAllowed of zero or less disables the quantity limit.
func ValidateSymbols(symbols []string, maxAllowed int) error {
	if len(symbols) == 0 {
		return ErrNoSymbols
	}

	if maxAllowed > 0 && len(symbols) > maxAllowed {
		return fmt.Errorf("%w: requested %d symbols, maximum allowed %d",
			ErrTooManySymbols, len(symbols), maxAllowed)
	}

	for i, symbol := range symbols {
		if err := ValidateSymbol(symbol); err != nil {
			return fmt.Errorf("invalid symbol at index %d (%q): %w", i, symbol, err)
		}
	}

	return nil
}

// SplitSymbols parses a comma-separated symbol list, dropping blanks and
// normalising case.
func SplitSymbols(list string) ([]string, error) {
	parts := strings.Split(list, ",")
	symbols := make([]string, 0, len(parts))

	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		s, err := NormalizeSymbol(p)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}

	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	return symbols, nil
}
