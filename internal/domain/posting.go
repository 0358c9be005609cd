package domain

import "github.com/holiman/uint256"

// PostingKind is the leg of a split a posting credits.
type PostingKind string

const (
	PostingPlatformFee PostingKind = "platform_fee"
	PostingCustomFee   PostingKind = "custom_fee"
	PostingCreator     PostingKind = "creator"
)

// Posting is a single credit written in the same unit of work as its tip.
type Posting struct {
	PostingID string
	TipID     string
	Network   Network
	Address   string
	Kind      PostingKind
	Amount    uint256.Int
	CreatedAt int64 // ms
}

// Balance is the aggregate credited amount of one address on one network.
type Balance struct {
	Network      Network
	Address      string
	Credited     uint256.Int
	PostingCount int64
	UpdatedAt    int64 // ms
}
