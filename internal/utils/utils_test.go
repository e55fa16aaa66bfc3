package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test_ValidateSymbol tests the ValidateSymbol function with various inputs
func Test_ValidateSymbol(t *testing.T) {
	tests := []struct {
		name        string
		symbol      string
		expectError bool
		errorMsg    string
		description string
	}{
		// Valid cases
		{
			name:        "Valid BTC",
			symbol:      "BTC",
			expectError: false,
			description: "Should accept plain upper-case symbol",
		},
		{
			name:        "Lowercase symbol",
			symbol:      "eth",
			expectError: false,
			description: "Should accept lowercase symbol",
		},
		{
			name:        "Digits and separators",
			symbol:      "USDT_ERC-20",
			expectError: false,
			description: "Should accept digits, underscore and hyphen",
		},

		// Invalid cases
		{
			name:        "Empty symbol",
			symbol:      "",
			expectError: true,
			errorMsg:    "symbol cannot be empty",
			description: "Should reject empty symbol",
		},
		{
			name:        "Path separator",
			symbol:      "BTC/USD",
			expectError: true,
			errorMsg:    "unsupported character",
			description: "Should reject symbols that would escape the request path",
		},
		{
			name:        "Query characters",
			symbol:      "BTC?x=1",
			expectError: true,
			errorMsg:    "unsupported character",
			description: "Should reject query characters",
		},
		{
			name:        "Whitespace inside",
			symbol:      "BT C",
			expectError: true,
			errorMsg:    "unsupported character",
			description: "Should reject embedded whitespace",
		},
		{
			name:        "Leading hyphen",
			symbol:      "-BTC",
			expectError: true,
			errorMsg:    "cannot start with",
			description: "Should reject leading separator",
		},
		{
			name:        "Too long",
			symbol:      strings.Repeat("A", MaxSymbolLength+1),
			expectError: true,
			errorMsg:    "exceeds",
			description: "Should reject overly long symbols",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSymbol(tt.symbol)

			if tt.expectError {
				assert.Error(t, err, tt.description)
				assert.ErrorIs(t, err, ErrInvalidSymbol)
				if tt.errorMsg != "" {
					assert.Contains(t, err.Error(), tt.errorMsg, tt.description)
				}
			} else {
				assert.NoError(t, err, tt.description)
			}
		})
	}
}

func Test_NormalizeSymbol(t *testing.T) {
	s, err := NormalizeSymbol("  btc ")
	require.NoError(t, err)
	assert.Equal(t, "BTC", s)

	_, err = NormalizeSymbol("b$c")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

// Test_ValidateSymbols tests the ValidateSymbols function with quantity and format checks
func Test_ValidateSymbols(t *testing.T) {
	tests := []struct {
		name        string
		symbols     []string
		maxAllowed  int
		expectedErr error
		errorMsg    string
		description string
	}{
		{
			name:        "Valid symbols within limit",
			symbols:     []string{"BTC", "ETH"},
			maxAllowed:  5,
			description: "Should accept valid symbols within limit",
		},
		{
			name:        "No limit",
			symbols:     []string{"BTC", "ETH", "LTC"},
			maxAllowed:  0,
			description: "Should treat zero limit as unlimited",
		},
		{
			name:        "Empty slice",
			symbols:     []string{},
			maxAllowed:  5,
			expectedErr: ErrNoSymbols,
			description: "Should reject empty symbol list",
		},
		{
			name:        "Too many symbols",
			symbols:     []string{"BTC", "ETH", "LTC"},
			maxAllowed:  2,
			expectedErr: ErrTooManySymbols,
			errorMsg:    "requested 3 symbols, maximum allowed 2",
			description: "Should reject lists above the limit",
		},
		{
			name:        "Invalid symbol in list",
			symbols:     []string{"BTC", "E/TH"},
			maxAllowed:  5,
			expectedErr: ErrInvalidSymbol,
			errorMsg:    "invalid symbol at index 1",
			description: "Should report the offending index",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSymbols(tt.symbols, tt.maxAllowed)

			if tt.expectedErr == nil {
				assert.NoError(t, err, tt.description)
				return
			}
			assert.True(t, errors.Is(err, tt.expectedErr), tt.description)
			if tt.errorMsg != "" {
				assert.Contains(t, err.Error(), tt.errorMsg)
			}
		})
	}
}

func Test_SplitSymbols(t *testing.T) {
	symbols, err := SplitSymbols("btc, eth,,LTC ")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH", "LTC"}, symbols)

	_, err = SplitSymbols(" , ")
	assert.ErrorIs(t, err, ErrNoSymbols)

	_, err = SplitSymbols("BTC,b@d")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}
