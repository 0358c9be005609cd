package ingestion

import (
	"sort"

	"tip-settlement/internal/solana"
)

// SortOldestFirst orders signatures as returned by getSignaturesForAddress
// (newest first) into processing order: slot ascending, and within a slot the
// reverse of the RPC order.
func SortOldestFirst(sigs []solana.SignatureInfo) {
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	sort.SliceStable(sigs, func(i, j int) bool {
		return sigs[i].Slot < sigs[j].Slot
	})
}
