package domain

// Fee policy constants. Basis points are integers out of FeeDenominator.
const (
	FeeDenominator        = 10000
	DefaultPlatformFeeBps = 300
	MaxCustomFeeBps       = 5000
)

// FeeConfig is the effective fee configuration for one recipient/content pair.
type FeeConfig struct {
	PlatformFeeBps int64 // immutable platform policy
	CustomFeeBps   int64 // 0..MaxCustomFeeBps
	RecipientID    string
	ContentID      string

	// CustomFeeRecipient receives the custom fee. Empty means the creator's own address.
	CustomFeeRecipient string

	// Version of the fee setting in effect, 0 when none is stored.
	Version int64
}

// FeeSetting is a persisted per-recipient custom fee, owned by RecipientID.
type FeeSetting struct {
	RecipientID  string
	ContentID    string
	BasisPoints  int64
	FeeRecipient string // optional wallet for the custom fee
	Version      int64  // incremented on every accepted update
	UpdatedAt    int64  // last-writer-wins timestamp (ms)
	UpdatedBy    string // authenticated actor
}
