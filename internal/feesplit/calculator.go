// Package feesplit computes the integer three-way split of a tip amount.
//
// Each fee leg is floor(amount * bps / 10000); the creator receives the
// remainder, so platform + custom + creator == amount exactly and rounding
// dust always goes to the creator.
package feesplit

import (
	"fmt"

	"github.com/holiman/uint256"

	"tip-settlement/internal/domain"
)

var denominator = uint256.NewInt(domain.FeeDenominator)

// Compute splits amount according to cfg. It has no side effects.
//
// Errors:
//   - ErrInvalidAmount if amount is zero
//   - ErrFeeOutOfBounds if the custom fee is outside [0, MaxCustomFeeBps]
//   - ErrFeeConfigInvalid if the platform fee is outside [0, FeeDenominator]
//     or platform + custom >= FeeDenominator
//   - ErrAmountOverflow if amount * bps exceeds 256 bits
func Compute(amount *uint256.Int, cfg domain.FeeConfig) (domain.SplitResult, error) {
	if amount == nil || amount.IsZero() {
		return domain.SplitResult{}, domain.ErrInvalidAmount
	}
	if err := ValidateConfig(cfg); err != nil {
		return domain.SplitResult{}, err
	}

	platform, err := feeOf(amount, cfg.PlatformFeeBps)
	if err != nil {
		return domain.SplitResult{}, err
	}
	custom, err := feeOf(amount, cfg.CustomFeeBps)
	if err != nil {
		return domain.SplitResult{}, err
	}

	var result domain.SplitResult
	result.Platform = platform
	result.CustomFee = custom
	result.Creator.Sub(amount, &platform)
	result.Creator.Sub(&result.Creator, &custom)
	return result, nil
}

// ValidateConfig checks fee bounds without computing a split.
func ValidateConfig(cfg domain.FeeConfig) error {
	if cfg.CustomFeeBps < 0 || cfg.CustomFeeBps > domain.MaxCustomFeeBps {
		return fmt.Errorf("%w: custom fee %d bps", domain.ErrFeeOutOfBounds, cfg.CustomFeeBps)
	}
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > domain.FeeDenominator {
		return fmt.Errorf("%w: platform fee %d bps", domain.ErrFeeConfigInvalid, cfg.PlatformFeeBps)
	}
	if cfg.PlatformFeeBps+cfg.CustomFeeBps >= domain.FeeDenominator {
		return fmt.Errorf("%w: platform %d + custom %d bps", domain.ErrFeeConfigInvalid,
			cfg.PlatformFeeBps, cfg.CustomFeeBps)
	}
	return nil
}

// feeOf returns floor(amount * bps / FeeDenominator).
func feeOf(amount *uint256.Int, bps int64) (uint256.Int, error) {
	var fee uint256.Int
	if bps == 0 {
		return fee, nil
	}
	if _, overflow := fee.MulOverflow(amount, uint256.NewInt(uint64(bps))); overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s * %d", domain.ErrAmountOverflow, amount.Dec(), bps)
	}
	fee.Div(&fee, denominator)
	return fee, nil
}
