package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/holiman/uint256"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/storage"
)

func settledTip(tipID, to string, amount, platform, creator uint64) (*domain.TipRecord, []*domain.Posting) {
	rec := &domain.TipRecord{
		TipID:   tipID,
		Network: domain.NetworkSolana,
		TxID:    "sig-" + tipID,
		From:    "tipper",
		To:      to,
		Amount:  *uint256.NewInt(amount),
		Split: domain.SplitResult{
			Platform: *uint256.NewInt(platform),
			Creator:  *uint256.NewInt(creator),
		},
		Status:    domain.TipStatusSettled,
		CreatedAt: 1000,
		SettledAt: 1000,
	}
	postings := []*domain.Posting{
		{PostingID: tipID + "-p", TipID: tipID, Network: domain.NetworkSolana, Address: "platform", Kind: domain.PostingPlatformFee, Amount: *uint256.NewInt(platform), CreatedAt: 1000},
		{PostingID: tipID + "-c", TipID: tipID, Network: domain.NetworkSolana, Address: to, Kind: domain.PostingCreator, Amount: *uint256.NewInt(creator), CreatedAt: 1000},
	}
	return rec, postings
}

func TestTipLedgerStore_SettleAndGet(t *testing.T) {
	store := NewTipLedgerStore()
	ctx := context.Background()

	rec, postings := settledTip("tip1", "creator", 1000, 30, 970)
	if err := store.Settle(ctx, rec, postings); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	got, err := store.GetByID(ctx, "tip1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Split.Creator.Uint64() != 970 {
		t.Errorf("creator mismatch: got %s, want 970", got.Split.Creator.Dec())
	}

	bal, err := store.GetBalance(ctx, domain.NetworkSolana, "creator")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.Credited.Uint64() != 970 || bal.PostingCount != 1 {
		t.Errorf("balance mismatch: got %s/%d", bal.Credited.Dec(), bal.PostingCount)
	}

	gotPostings, err := store.GetPostings(ctx, "tip1")
	if err != nil {
		t.Fatalf("GetPostings failed: %v", err)
	}
	if len(gotPostings) != 2 || gotPostings[0].Kind != domain.PostingCreator {
		t.Errorf("unexpected postings: %+v", gotPostings)
	}
}

func TestTipLedgerStore_DuplicateKey(t *testing.T) {
	store := NewTipLedgerStore()
	ctx := context.Background()

	rec, postings := settledTip("tip1", "creator", 1000, 30, 970)
	if err := store.Settle(ctx, rec, postings); err != nil {
		t.Fatalf("First settle failed: %v", err)
	}

	err := store.Settle(ctx, rec, postings)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	rejected := *rec
	rejected.Status = domain.TipStatusRejected
	if err := store.Reject(ctx, &rejected); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey on reject, got %v", err)
	}

	bal, _ := store.GetBalance(ctx, domain.NetworkSolana, "creator")
	if bal.Credited.Uint64() != 970 {
		t.Errorf("balance credited twice: %s", bal.Credited.Dec())
	}
}

func TestTipLedgerStore_RejectDoesNotCredit(t *testing.T) {
	store := NewTipLedgerStore()
	ctx := context.Background()

	rec := &domain.TipRecord{
		TipID:   "tip1",
		Network: domain.NetworkSolana,
		To:      "creator",
		Status:  domain.TipStatusRejected,
		Reason:  "invalid_amount",
	}
	if err := store.Reject(ctx, rec); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	if _, err := store.GetBalance(ctx, domain.NetworkSolana, "creator"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound balance, got %v", err)
	}

	got, err := store.GetByID(ctx, "tip1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.TipStatusRejected || got.Reason != "invalid_amount" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestTipLedgerStore_InvalidInput(t *testing.T) {
	store := NewTipLedgerStore()
	ctx := context.Background()

	pending := &domain.TipRecord{TipID: "tip1", Status: domain.TipStatusPending}
	if err := store.Settle(ctx, pending, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for pending settle, got %v", err)
	}
	if err := store.Reject(ctx, pending); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for pending reject, got %v", err)
	}

	rec, postings := settledTip("tip2", "creator", 1000, 30, 970)
	postings[1].TipID = "other"
	if err := store.Settle(ctx, rec, postings); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for foreign posting, got %v", err)
	}
	if _, err := store.GetByID(ctx, "tip2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("partial settle was persisted: %v", err)
	}
}

func TestTipLedgerStore_OverflowLeavesNoTrace(t *testing.T) {
	store := NewTipLedgerStore()
	ctx := context.Background()

	max := new(uint256.Int).SetAllOne()
	first := &domain.TipRecord{TipID: "big", Network: domain.NetworkSolana, To: "creator", Status: domain.TipStatusSettled}
	if err := store.Settle(ctx, first, []*domain.Posting{
		{TipID: "big", Network: domain.NetworkSolana, Address: "creator", Kind: domain.PostingCreator, Amount: *max},
	}); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	rec, postings := settledTip("tip1", "creator", 1000, 30, 970)
	if err := store.Settle(ctx, rec, postings); !errors.Is(err, domain.ErrAmountOverflow) {
		t.Fatalf("Expected ErrAmountOverflow, got %v", err)
	}

	if _, err := store.GetBalance(ctx, domain.NetworkSolana, "platform"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("platform credited by a failed settlement: %v", err)
	}
	if _, err := store.GetByID(ctx, "tip1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("record persisted by a failed settlement: %v", err)
	}
}

func TestTipLedgerStore_ConcurrentSettleSameCreator(t *testing.T) {
	store := NewTipLedgerStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, postings := settledTip(string(rune('A'+i)), "creator", 100, 3, 97)
			if err := store.Settle(ctx, rec, postings); err != nil {
				t.Errorf("Settle %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	bal, err := store.GetBalance(ctx, domain.NetworkSolana, "creator")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.Credited.Uint64() != 97*n || bal.PostingCount != n {
		t.Errorf("balance = %s/%d, want %d/%d", bal.Credited.Dec(), bal.PostingCount, 97*n, n)
	}
}

func TestTipLedgerStore_GetByToAddressAndList(t *testing.T) {
	store := NewTipLedgerStore()
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		rec, postings := settledTip(id, "creator", 100, 3, 97)
		if err := store.Settle(ctx, rec, postings); err != nil {
			t.Fatalf("Settle failed: %v", err)
		}
	}

	recs, err := store.GetByToAddress(ctx, domain.NetworkSolana, "creator", 2)
	if err != nil {
		t.Fatalf("GetByToAddress failed: %v", err)
	}
	if len(recs) != 2 || recs[0].TipID != "t3" || recs[1].TipID != "t2" {
		t.Errorf("unexpected order: %v", recs)
	}

	balances, err := store.ListBalances(ctx, domain.NetworkSolana)
	if err != nil {
		t.Fatalf("ListBalances failed: %v", err)
	}
	if len(balances) != 2 || balances[0].Address != "creator" || balances[1].Address != "platform" {
		t.Errorf("unexpected balances: %+v", balances)
	}
	if balances[1].Credited.Uint64() != 9 {
		t.Errorf("platform balance = %s, want 9", balances[1].Credited.Dec())
	}
}
