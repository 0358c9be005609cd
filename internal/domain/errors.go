package domain

import "errors"

// Settlement errors. Validation errors are recoverable and surfaced to the caller;
// ErrSplitInvariantViolation indicates a defect and aborts settlement.
var (
	// ErrInvalidAmount is returned for zero, negative or non-integral amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrFeeConfigInvalid is returned when the configured fees leave no creator amount.
	ErrFeeConfigInvalid = errors.New("fee config invalid: fees leave no creator amount")

	// ErrFeeOutOfBounds is returned for a custom fee outside [0, 5000] basis points.
	ErrFeeOutOfBounds = errors.New("custom fee out of bounds")

	// ErrUnauthorized is returned when a fee setting is changed by a non-owner identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDuplicateTip is returned when a tip id was already settled.
	ErrDuplicateTip = errors.New("duplicate tip")

	// ErrSplitInvariantViolation is returned when platform + custom + creator != amount.
	ErrSplitInvariantViolation = errors.New("split invariant violation")

	// ErrTipRejected is returned when a tip id is already terminal in the rejected state.
	ErrTipRejected = errors.New("tip previously rejected")

	// ErrAmountOverflow is returned when an amount does not fit in 256 bits.
	ErrAmountOverflow = errors.New("amount overflow")

	// ErrInvalidAddress is returned for addresses malformed for the target network.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidTxID is returned for transaction identifiers malformed for the network.
	ErrInvalidTxID = errors.New("invalid transaction id")

	// ErrInvalidTipID is returned when a tip instruction carries no tip id.
	ErrInvalidTipID = errors.New("invalid tip id")

	// ErrMemoTooLong is returned when a memo exceeds MaxMemoBytes.
	ErrMemoTooLong = errors.New("memo too long")

	// ErrUnsupportedNetwork is returned for an unknown network name.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrPlatformWalletMissing is returned when no platform wallet is configured for a network.
	ErrPlatformWalletMissing = errors.New("platform wallet not configured")

	// ErrUnknownRecipient is returned when a tip names no recipient.
	ErrUnknownRecipient = errors.New("unknown recipient")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrFeeConfigInvalid, "fee_config_invalid"},
	{ErrFeeOutOfBounds, "fee_out_of_bounds"},
	{ErrUnauthorized, "unauthorized"},
	{ErrDuplicateTip, "duplicate_tip"},
	{ErrSplitInvariantViolation, "split_invariant_violation"},
	{ErrTipRejected, "tip_rejected"},
	{ErrAmountOverflow, "amount_overflow"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrInvalidTxID, "invalid_tx_id"},
	{ErrInvalidTipID, "invalid_tip_id"},
	{ErrMemoTooLong, "memo_too_long"},
	{ErrUnsupportedNetwork, "unsupported_network"},
	{ErrPlatformWalletMissing, "platform_wallet_missing"},
	{ErrUnknownRecipient, "unknown_recipient"},
}

// ErrorCode returns a stable machine-readable code for a settlement error,
// or "internal" when err is not part of the taxonomy.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
