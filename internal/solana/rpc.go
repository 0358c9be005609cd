package solana

import (
	"context"
	"errors"
	"time"
)

// ErrTransactionNotFound is returned when the node has no record of a signature,
// typically because it is not yet confirmed.
var ErrTransactionNotFound = errors.New("transaction not found")

// RPCClient defines the Solana JSON-RPC calls used by tip ingestion.
type RPCClient interface {
	// GetTransaction retrieves a confirmed transaction with its log messages.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures mentioning an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (uint64, error)
}

// LatencyRecorder receives the duration of each RPC method call.
type LatencyRecorder interface {
	RecordRPCLatency(method string, d time.Duration)
}
