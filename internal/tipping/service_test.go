package tipping

import (
	"context"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/feeconfig"
	"tip-settlement/internal/settlement"
	"tip-settlement/internal/storage/memory"
)

const (
	solTipper   = "6x5SYnLroiN7WYq8NQYU9KHcH4YjpBbwpUfVu3EB7ieH"
	solCreator  = "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"
	solPlatform = "CktRuQ2mttgRGkXJtyksdKHjUdc2C4TgDzyB98oEzy8"
	solTx       = "1GMkH3brNXiNNs1tiFZHu4yZSRrzJwxi5wB9bHFtMinfCXNnR1adh8Vo8NTheK4evneedH4qmvjeqcBBNAefgS"

	ethTipper   = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	ethCreator  = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	ethPlatform = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
)

type harness struct {
	svc      *Service
	registry *feeconfig.Registry
	ledger   *settlement.Ledger
	store    *memory.TipLedgerStore
	events   *memory.SettlementEventStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	registry, err := feeconfig.NewRegistry(memory.NewFeeSettingStore(), domain.DefaultPlatformFeeBps)
	require.NoError(t, err)

	store := memory.NewTipLedgerStore()
	events := memory.NewSettlementEventStore()
	ledger := settlement.NewLedger(store, map[domain.Network]string{
		domain.NetworkSolana:   solPlatform,
		domain.NetworkEthereum: ethPlatform,
	}, settlement.WithPublisher(settlement.NewStorePublisher(events)))

	return &harness{
		svc:      NewService(registry, ledger, nil),
		registry: registry,
		ledger:   ledger,
		store:    store,
		events:   events,
	}
}

func solRequest(amount uint64) TipRequest {
	return TipRequest{
		Network:     "solana",
		TxID:        solTx,
		From:        solTipper,
		To:          solCreator,
		RecipientID: "creator-1",
		ContentID:   "video-1",
		Amount:      *uint256.NewInt(amount),
	}
}

func TestSubmit_DefaultPlatformFee(t *testing.T) {
	h := newHarness(t)

	rec, err := h.svc.Submit(context.Background(), solRequest(1_000_000_000))
	require.NoError(t, err)

	assert.Equal(t, domain.TipStatusSettled, rec.Status)
	assert.Equal(t, "30000000", rec.Split.Platform.Dec())
	assert.Equal(t, "0", rec.Split.CustomFee.Dec())
	assert.Equal(t, "970000000", rec.Split.Creator.Dec())
	assert.Equal(t, int64(300), rec.Fees.PlatformFeeBps)
	assert.Len(t, rec.TipID, 64)
}

func TestSubmit_CustomFeeComposition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.registry.SetCustomFee(ctx, "creator-1", feeconfig.FeeUpdate{
		RecipientID: "creator-1",
		ContentID:   "video-1",
		BasisPoints: 1000,
	})
	require.NoError(t, err)

	rec, err := h.svc.Submit(ctx, TipRequest{
		Network:     "ethereum",
		TxID:        "0x" + strings.Repeat("AB", 32),
		From:        ethTipper,
		To:          ethCreator,
		RecipientID: "creator-1",
		ContentID:   "video-1",
		Amount:      *uint256.MustFromDecimal("1000000000000000000"),
	})
	require.NoError(t, err)

	assert.Equal(t, "30000000000000000", rec.Split.Platform.Dec())
	assert.Equal(t, "100000000000000000", rec.Split.CustomFee.Dec())
	assert.Equal(t, "870000000000000000", rec.Split.Creator.Dec())
	assert.Equal(t, "0x"+strings.Repeat("ab", 32), rec.TxID)
}

func TestSubmit_ZeroAmountRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec, err := h.svc.Submit(ctx, solRequest(0))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.NotNil(t, rec)
	assert.Equal(t, domain.TipStatusRejected, rec.Status)

	stored, err := h.ledger.Get(ctx, rec.TipID)
	require.NoError(t, err)
	assert.Equal(t, domain.TipStatusRejected, stored.Status)
}

func TestSubmit_ResubmissionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Submit(ctx, solRequest(1_000))
	require.NoError(t, err)

	// A changed fee between submissions must not change the settled tip.
	_, err = h.registry.SetCustomFee(ctx, "creator-1", feeconfig.FeeUpdate{RecipientID: "creator-1", ContentID: "video-1", BasisPoints: 2000})
	require.NoError(t, err)

	second, err := h.svc.Submit(ctx, solRequest(1_000))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	count, err := h.events.CountByNetwork(ctx, domain.NetworkSolana)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	b, err := h.ledger.Balance(ctx, domain.NetworkSolana, solCreator)
	require.NoError(t, err)
	assert.Equal(t, "970", b.Credited.Dec())
}

func TestSubmit_FeeUpdateIsNotRetroactive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.registry.SetCustomFee(ctx, "creator-1", feeconfig.FeeUpdate{RecipientID: "creator-1", ContentID: "video-1", BasisPoints: 1000})
	require.NoError(t, err)

	old, err := h.svc.Submit(ctx, solRequest(10_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1), old.Fees.Version)

	_, err = h.registry.SetCustomFee(ctx, "creator-1", feeconfig.FeeUpdate{RecipientID: "creator-1", ContentID: "video-1", BasisPoints: 4000})
	require.NoError(t, err)

	req := solRequest(10_000)
	req.EventIndex = 1
	fresh, err := h.svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "4000", fresh.Split.CustomFee.Dec())
	assert.Equal(t, int64(2), fresh.Fees.Version)

	got, err := h.ledger.Get(ctx, old.TipID)
	require.NoError(t, err)
	assert.Equal(t, "1000", got.Split.CustomFee.Dec())
	assert.Equal(t, "8700", got.Split.Creator.Dec())
	assert.Equal(t, int64(1000), got.Fees.CustomFeeBps)
}

func TestSubmit_UnidentifiableTransferHasNoRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*TipRequest)
		want   error
	}{
		{"unknown network", func(r *TipRequest) { r.Network = "dogecoin" }, domain.ErrUnsupportedNetwork},
		{"malformed signature", func(r *TipRequest) { r.TxID = "abc" }, domain.ErrInvalidTxID},
		{"negative event index", func(r *TipRequest) { r.EventIndex = -1 }, domain.ErrInvalidTipID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := solRequest(1000)
			tt.mutate(&req)
			rec, err := h.svc.Submit(ctx, req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, rec)
		})
	}

	balances, err := h.store.ListBalances(ctx, domain.NetworkSolana)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestSubmit_InvalidAddressRejected(t *testing.T) {
	h := newHarness(t)

	req := solRequest(1000)
	req.To = "not-base58-0OIl"
	rec, err := h.svc.Submit(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidAddress)
	assert.Equal(t, domain.TipStatusRejected, rec.Status)
	assert.Equal(t, "invalid_address", rec.Reason)
}

func TestQuote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.registry.SetCustomFee(ctx, "creator-1", feeconfig.FeeUpdate{RecipientID: "creator-1", BasisPoints: 1000})
	require.NoError(t, err)

	q, err := h.svc.Quote(ctx, "SOLANA", "creator-1", "video-7", *uint256.NewInt(1_000_000_000))
	require.NoError(t, err)

	assert.Equal(t, domain.NetworkSolana, q.Network)
	assert.Equal(t, "SOL", q.Display.Symbol)
	assert.Equal(t, "1", q.Display.Amount)
	assert.Equal(t, "0.03", q.Display.Platform)
	assert.Equal(t, "0.1", q.Display.CustomFee)
	assert.Equal(t, "0.87", q.Display.Creator)
	assert.Equal(t, int64(1000), q.Fees.CustomFeeBps)

	// Quotes never touch the ledger.
	balances, err := h.store.ListBalances(ctx, domain.NetworkSolana)
	require.NoError(t, err)
	assert.Empty(t, balances)

	_, err = h.svc.Quote(ctx, "solana", "creator-1", "", uint256.Int{})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestSubmit_EmptyRecipientRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := solRequest(1000)
	req.RecipientID = ""
	rec, err := h.svc.Submit(ctx, req)
	require.ErrorIs(t, err, domain.ErrUnknownRecipient)
	require.NotNil(t, rec)
	assert.Equal(t, domain.TipStatusRejected, rec.Status)
	assert.Equal(t, "unknown_recipient", rec.Reason)

	stored, err := h.ledger.Get(ctx, rec.TipID)
	require.NoError(t, err)
	assert.Equal(t, domain.TipStatusRejected, stored.Status)
}

func TestSubmit_ChainSplitIgnoresCustomFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.registry.SetCustomFee(ctx, "creator-1", feeconfig.FeeUpdate{
		RecipientID:  "creator-1",
		ContentID:    "video-1",
		BasisPoints:  1000,
		FeeRecipient: solPlatform,
	})
	require.NoError(t, err)

	req := solRequest(1_000_000_000)
	req.ChainSplit = true
	rec, err := h.svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "30000000", rec.Split.Platform.Dec())
	assert.True(t, rec.Split.CustomFee.IsZero())
	assert.Equal(t, "970000000", rec.Split.Creator.Dec())
	assert.Equal(t, int64(0), rec.Fees.CustomFeeBps)
	assert.Equal(t, "video-1", rec.Fees.ContentID)

	postings, err := h.ledger.Postings(ctx, rec.TipID)
	require.NoError(t, err)
	assert.Len(t, postings, 2)
}
