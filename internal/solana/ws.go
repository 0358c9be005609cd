package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to logs of transactions mentioning the filter's accounts.
	// The channel is closed when the client closes.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines the subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these accounts. Empty means all.
	Mentions []string
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      uint64
	Logs      []string
	Err       interface{}
}
