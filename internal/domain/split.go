package domain

import "github.com/holiman/uint256"

// SplitResult is the three-way integer split of a tip amount.
// Amounts are values so copies never share state.
type SplitResult struct {
	Platform  uint256.Int
	CustomFee uint256.Int
	Creator   uint256.Int
}

// Total returns Platform + CustomFee + Creator. ok is false if the sum overflows.
func (s *SplitResult) Total() (total uint256.Int, ok bool) {
	var overflow bool
	if _, overflow = total.AddOverflow(&s.Platform, &s.CustomFee); overflow {
		return uint256.Int{}, false
	}
	if _, overflow = total.AddOverflow(&total, &s.Creator); overflow {
		return uint256.Int{}, false
	}
	return total, true
}

// Balances reports whether the split sums exactly to amount.
func (s *SplitResult) Balances(amount *uint256.Int) bool {
	total, ok := s.Total()
	return ok && total.Eq(amount)
}
