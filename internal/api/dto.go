package api

import "tip-settlement/internal/domain"

// Amounts are decimal strings of base units; JSON numbers cannot carry 256 bits.

type submitTipRequest struct {
	Network     string `json:"network"`
	TxID        string `json:"tx_id"`
	EventIndex  int    `json:"event_index"`
	From        string `json:"from"`
	To          string `json:"to"`
	RecipientID string `json:"recipient_id"`
	ContentID   string `json:"content_id"`
	Amount      string `json:"amount"`
	Memo        string `json:"memo,omitempty"`
}

type quoteRequest struct {
	Network     string `json:"network"`
	RecipientID string `json:"recipient_id"`
	ContentID   string `json:"content_id"`
	Amount      string `json:"amount"`
}

type setFeeRequest struct {
	BasisPoints  int64  `json:"basis_points"`
	FeeRecipient string `json:"fee_recipient,omitempty"`
}

type splitJSON struct {
	Platform  string `json:"platform"`
	CustomFee string `json:"custom_fee"`
	Creator   string `json:"creator"`
}

type feeConfigJSON struct {
	PlatformFeeBps     int64  `json:"platform_fee_bps"`
	CustomFeeBps       int64  `json:"custom_fee_bps"`
	RecipientID        string `json:"recipient_id"`
	ContentID          string `json:"content_id"`
	CustomFeeRecipient string `json:"custom_fee_recipient,omitempty"`
	Version            int64  `json:"version"`
}

type tipRecordJSON struct {
	TipID      string        `json:"tip_id"`
	Network    string        `json:"network"`
	TxID       string        `json:"tx_id"`
	EventIndex int           `json:"event_index"`
	From       string        `json:"from"`
	To         string        `json:"to"`
	Amount     string        `json:"amount"`
	Split      splitJSON     `json:"split"`
	Fees       feeConfigJSON `json:"fees"`
	Memo       string        `json:"memo,omitempty"`
	Status     string        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	CreatedAt  int64         `json:"created_at"`
	SettledAt  int64         `json:"settled_at,omitempty"`
}

type rejectedTipJSON struct {
	Error errorDetail   `json:"error"`
	Tip   tipRecordJSON `json:"tip"`
}

type quoteJSON struct {
	Network string        `json:"network"`
	Amount  string        `json:"amount"`
	Split   splitJSON     `json:"split"`
	Fees    feeConfigJSON `json:"fees"`
	Display displayJSON   `json:"display"`
}

type displayJSON struct {
	Symbol    string `json:"symbol"`
	Amount    string `json:"amount"`
	Platform  string `json:"platform"`
	CustomFee string `json:"custom_fee"`
	Creator   string `json:"creator"`
}

type feeSettingJSON struct {
	RecipientID  string `json:"recipient_id"`
	ContentID    string `json:"content_id"`
	BasisPoints  int64  `json:"basis_points"`
	FeeRecipient string `json:"fee_recipient,omitempty"`
	Version      int64  `json:"version"`
	UpdatedAt    int64  `json:"updated_at"`
	UpdatedBy    string `json:"updated_by"`
}

type balanceJSON struct {
	Network      string `json:"network"`
	Address      string `json:"address"`
	Credited     string `json:"credited"`
	Display      string `json:"display"`
	PostingCount int64  `json:"posting_count"`
	UpdatedAt    int64  `json:"updated_at"`
}

func toSplitJSON(s domain.SplitResult) splitJSON {
	return splitJSON{Platform: s.Platform.Dec(), CustomFee: s.CustomFee.Dec(), Creator: s.Creator.Dec()}
}

func toFeeConfigJSON(c domain.FeeConfig) feeConfigJSON {
	return feeConfigJSON{
		PlatformFeeBps:     c.PlatformFeeBps,
		CustomFeeBps:       c.CustomFeeBps,
		RecipientID:        c.RecipientID,
		ContentID:          c.ContentID,
		CustomFeeRecipient: c.CustomFeeRecipient,
		Version:            c.Version,
	}
}

func toTipRecordJSON(r *domain.TipRecord) tipRecordJSON {
	return tipRecordJSON{
		TipID:      r.TipID,
		Network:    string(r.Network),
		TxID:       r.TxID,
		EventIndex: r.EventIndex,
		From:       r.From,
		To:         r.To,
		Amount:     r.Amount.Dec(),
		Split:      toSplitJSON(r.Split),
		Fees:       toFeeConfigJSON(r.Fees),
		Memo:       r.Memo,
		Status:     string(r.Status),
		Reason:     r.Reason,
		CreatedAt:  r.CreatedAt,
		SettledAt:  r.SettledAt,
	}
}

func toFeeSettingJSON(s *domain.FeeSetting) feeSettingJSON {
	return feeSettingJSON{
		RecipientID:  s.RecipientID,
		ContentID:    s.ContentID,
		BasisPoints:  s.BasisPoints,
		FeeRecipient: s.FeeRecipient,
		Version:      s.Version,
		UpdatedAt:    s.UpdatedAt,
		UpdatedBy:    s.UpdatedBy,
	}
}

func toBalanceJSON(b *domain.Balance) balanceJSON {
	return balanceJSON{
		Network:      string(b.Network),
		Address:      b.Address,
		Credited:     b.Credited.Dec(),
		Display:      domain.FormatNetworkAmount(b.Network, &b.Credited),
		PostingCount: b.PostingCount,
		UpdatedAt:    b.UpdatedAt,
	}
}
