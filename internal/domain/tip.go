package domain

import "github.com/holiman/uint256"

// MaxMemoBytes bounds the optional tip memo.
const MaxMemoBytes = 200

// TipStatus is the settlement state of a tip.
type TipStatus string

const (
	TipStatusPending  TipStatus = "pending"
	TipStatusSettled  TipStatus = "settled"
	TipStatusRejected TipStatus = "rejected"
)

// String returns the string representation of TipStatus.
func (s TipStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is allowed.
func (s TipStatus) IsTerminal() bool {
	return s == TipStatusSettled || s == TipStatusRejected
}

// TipInstruction is a validated request to settle one observed transfer.
type TipInstruction struct {
	TipID      string // deterministic hash of (network, tx id, event index)
	Network    Network
	TxID       string
	EventIndex int
	From       string // tipper
	To         string // creator wallet
	Amount     uint256.Int
	Memo       string
	Fees       FeeConfig // configuration the split was computed with
}

// TipRecord is the ledger entry for a tip. Immutable once terminal.
type TipRecord struct {
	TipID      string
	Network    Network
	TxID       string
	EventIndex int
	From       string
	To         string
	Amount     uint256.Int
	Split      SplitResult
	Fees       FeeConfig // snapshot at settlement time
	Memo       string
	Status     TipStatus
	Reason     string // error code when rejected
	CreatedAt  int64  // ms
	SettledAt  int64  // ms, 0 unless settled
}

// RecordFromInstruction builds a pending record carrying the instruction's facts.
func RecordFromInstruction(in *TipInstruction, now int64) *TipRecord {
	return &TipRecord{
		TipID:      in.TipID,
		Network:    in.Network,
		TxID:       in.TxID,
		EventIndex: in.EventIndex,
		From:       in.From,
		To:         in.To,
		Amount:     in.Amount,
		Fees:       in.Fees,
		Memo:       in.Memo,
		Status:     TipStatusPending,
		CreatedAt:  now,
	}
}
