package domain

import "github.com/holiman/uint256"

// SettlementEvent is the analytics projection of a settled tip.
type SettlementEvent struct {
	TipID            string
	Network          Network
	TxID             string
	FromAddress      string
	ToAddress        string
	RecipientID      string
	ContentID        string
	Amount           uint256.Int
	PlatformAmount   uint256.Int
	CustomFeeAmount  uint256.Int
	CreatorAmount    uint256.Int
	PlatformAddress  string
	CustomFeeAddress string
	PlatformFeeBps   int64
	CustomFeeBps     int64
	SettledAt        int64 // ms
}

// AddressTotal is a per-address credited sum computed by the analytics store.
type AddressTotal struct {
	Network Network
	Address string
	Total   uint256.Int
}

// NewSettlementEvent projects a settled record and its postings.
func NewSettlementEvent(rec *TipRecord, postings []*Posting) *SettlementEvent {
	ev := &SettlementEvent{
		TipID:           rec.TipID,
		Network:         rec.Network,
		TxID:            rec.TxID,
		FromAddress:     rec.From,
		ToAddress:       rec.To,
		RecipientID:     rec.Fees.RecipientID,
		ContentID:       rec.Fees.ContentID,
		Amount:          rec.Amount,
		PlatformAmount:  rec.Split.Platform,
		CustomFeeAmount: rec.Split.CustomFee,
		CreatorAmount:   rec.Split.Creator,
		PlatformFeeBps:  rec.Fees.PlatformFeeBps,
		CustomFeeBps:    rec.Fees.CustomFeeBps,
		SettledAt:       rec.SettledAt,
	}
	for _, p := range postings {
		switch p.Kind {
		case PostingPlatformFee:
			ev.PlatformAddress = p.Address
		case PostingCustomFee:
			ev.CustomFeeAddress = p.Address
		case PostingCreator:
			ev.ToAddress = p.Address
		}
	}
	return ev
}
