package stub

import (
	"context"
	"errors"
	"sync"

	"tip-settlement/internal/solana"
)

var errClosed = errors.New("stub websocket closed")

// WSClient implements solana.WSClient by fanning out notifications passed to Publish.
type WSClient struct {
	mu      sync.Mutex
	subs    []chan solana.LogNotification
	filters []solana.LogsFilter
	closed  bool

	// Subscribed receives a value each time SubscribeLogs succeeds.
	Subscribed chan struct{}
}

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{Subscribed: make(chan struct{}, 16)}
}

var _ solana.WSClient = (*WSClient)(nil)

// SubscribeLogs registers a subscription.
func (c *WSClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errClosed
	}
	ch := make(chan solana.LogNotification, 64)
	c.subs = append(c.subs, ch)
	c.filters = append(c.filters, filter)

	select {
	case c.Subscribed <- struct{}{}:
	default:
	}
	return ch, nil
}

// Publish delivers a notification to every subscription.
func (c *WSClient) Publish(n solana.LogNotification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		ch <- n
	}
}

// Filters returns the filters subscribed so far.
func (c *WSClient) Filters() []solana.LogsFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]solana.LogsFilter(nil), c.filters...)
}

// Close closes every subscription channel.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, ch := range c.subs {
		close(ch)
	}
	return nil
}
