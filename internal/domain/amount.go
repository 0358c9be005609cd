package domain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseAmount parses a base-unit decimal string into an exact 256-bit amount.
// Signs, fractions, exponents and empty strings are rejected with ErrInvalidAmount.
func ParseAmount(s string) (uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uint256.Int{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return uint256.Int{}, fmt.Errorf("%w: %q is not a base-unit integer", ErrInvalidAmount, s)
		}
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}
	return *v, nil
}

// FormatUnits renders a base-unit amount as a decimal string with the given
// number of decimals, e.g. 1500000000 lamports with 9 decimals is "1.5".
// Display only; settlement math never leaves integers.
func FormatUnits(a *uint256.Int, decimals int32) string {
	return decimal.NewFromBigInt(a.ToBig(), -decimals).String()
}

// FormatNetworkAmount renders a base-unit amount in the network's native asset.
func FormatNetworkAmount(n Network, a *uint256.Int) string {
	info, ok := n.Info()
	if !ok {
		return a.Dec()
	}
	return FormatUnits(a, info.Decimals)
}
