// Package stub provides in-memory Solana clients for tests.
package stub

import (
	"context"
	"sync"

	"tip-settlement/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu           sync.Mutex
	transactions map[string]*solana.Transaction
	signatures   map[string][]solana.SignatureInfo
	slot         uint64

	// Calls counts GetTransaction invocations per signature.
	Calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		transactions: make(map[string]*solana.Transaction),
		signatures:   make(map[string][]solana.SignatureInfo),
		Calls:        make(map[string]int),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls[signature]++
	tx, ok := c.transactions[signature]
	if !ok {
		return nil, solana.ErrTransactionNotFound
	}
	return tx, nil
}

// GetSignaturesForAddress returns signatures newest first, honoring Before, Until and Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sigs := c.signatures[address]
	start := 0
	if opts != nil && opts.Before != "" {
		start = len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
	}

	var out []solana.SignatureInfo
	for _, s := range sigs[start:] {
		if opts != nil && opts.Until != "" && s.Signature == opts.Until {
			break
		}
		out = append(out, s)
		if opts != nil && opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// GetSlot returns the highest slot added so far.
func (c *RPCClient) GetSlot(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transactions[tx.Signature] = tx
	if tx.Slot > c.slot {
		c.slot = tx.Slot
	}
}

// AddSignatures sets the signature history of an address, newest first.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signatures[address] = sigs
}

// CallCount returns how many times GetTransaction was called for a signature.
func (c *RPCClient) CallCount(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[signature]
}
