package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tip-settlement/internal/logging"
)

// ErrClientClosed is returned by calls on a closed client.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
	// Commitment is the commitment level requested for notifications.
	Commitment string
	// BufferSize is the per-subscription notification buffer.
	BufferSize int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Commitment:        DefaultCommitment,
		BufferSize:        1024,
	}
}

// logsSubscription is an active logsSubscribe and its delivery channel.
type logsSubscription struct {
	filter LogsFilter
	ch     chan LogNotification
}

// WebSocketClient implements WSClient using gorilla/websocket.
// It reconnects with exponential backoff and resubscribes every active
// filter on the new connection. Notifications are never dropped: a full
// buffer blocks the reader.
type WebSocketClient struct {
	endpoint string
	config   WSClientConfig
	logger   logrus.FieldLogger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	subs   map[int64]*logsSubscription // keyed by server subscription id
	subsMu sync.RWMutex

	pending   map[uint64]chan int64 // request id -> subscription id
	pendingMu sync.Mutex

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

var _ WSClient = (*WebSocketClient)(nil)

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, logger logrus.FieldLogger) (*WebSocketClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Commitment == "" {
		cfg.Commitment = DefaultCommitment
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	c := &WebSocketClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   logging.OrDiscard(logger).WithField("component", "solana_ws"),
		subs:     make(map[int64]*logsSubscription),
		pending:  make(map[uint64]chan int64),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WebSocketClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeLogs subscribes to program logs matching the filter.
func (c *WebSocketClient) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	subID, err := c.subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	sub := &logsSubscription{
		filter: filter,
		ch:     make(chan LogNotification, c.config.BufferSize),
	}
	c.subsMu.Lock()
	c.subs[subID] = sub
	c.subsMu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"subscription": subID,
		"mentions":     filter.Mentions,
	}).Info("logs subscription active")
	return sub.ch, nil
}

// subscribe sends logsSubscribe and waits for the subscription id.
func (c *WebSocketClient) subscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	var mentions interface{} = "all"
	if len(filter.Mentions) > 0 {
		mentions = map[string]interface{}{"mentions": filter.Mentions}
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentions,
			map[string]string{"commitment": c.config.Commitment},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = confirmCh
	c.pendingMu.Unlock()
	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	if err := c.writeJSON(req); err != nil {
		forget()
		return 0, err
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, ErrClientClosed
		}
		return subID, nil
	case <-timer.C:
		forget()
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, ErrClientClosed
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

func (c *WebSocketClient) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection and every subscription channel.
func (c *WebSocketClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	// The reader may be blocked delivering to a subscriber; wait for it
	// before closing channels it could still send on.
	c.wg.Wait()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WebSocketClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.sleep(100 * time.Millisecond) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				c.logger.WithError(err).WithField("delay", reconnectDelay).Warn("websocket read failed, reconnecting")
				go c.reconnect(conn, reconnectDelay)

				reconnectDelay *= 2
				if reconnectDelay > c.config.MaxReconnectDelay {
					reconnectDelay = c.config.MaxReconnectDelay
				}
			}

			if !c.sleep(100 * time.Millisecond) {
				return
			}
			continue
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// sleep waits for d. It returns false if the client closed meanwhile.
func (c *WebSocketClient) sleep(d time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(d):
		return true
	}
}

// reconnect replaces the broken connection and resubscribes.
func (c *WebSocketClient) reconnect(broken *websocket.Conn, delay time.Duration) {
	defer c.reconnecting.Store(false)

	if !c.sleep(delay) {
		return
	}

	c.connMu.Lock()
	if c.conn == broken {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// The reader keeps failing on a nil connection and schedules the next attempt.
		c.logger.WithError(err).Warn("websocket reconnect failed")
		return
	}
	if c.closed.Load() {
		c.connMu.Lock()
		c.conn.Close()
		c.connMu.Unlock()
		return
	}

	c.logger.Info("websocket reconnected")
	c.resubscribeAll()
}

// resubscribeAll moves every subscription to a fresh server subscription id.
func (c *WebSocketClient) resubscribeAll() {
	c.subsMu.RLock()
	old := make(map[int64]*logsSubscription, len(c.subs))
	for id, sub := range c.subs {
		old[id] = sub
	}
	c.subsMu.RUnlock()

	for oldID, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
		newID, err := c.subscribe(ctx, sub.filter)
		cancel()

		if err != nil {
			c.logger.WithError(err).WithField("subscription", oldID).Warn("resubscribe failed")
			continue
		}

		c.subsMu.Lock()
		delete(c.subs, oldID)
		c.subs[newID] = sub
		c.subsMu.Unlock()
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WebSocketClient) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.WithError(err).Debug("ignoring malformed websocket message")
		return
	}

	switch {
	case env.Error != nil:
		c.logger.WithFields(logrus.Fields{
			"request_id": env.ID,
			"code":       env.Error.Code,
		}).Error(env.Error.Message)
	case env.Method == "logsNotification" && env.Params != nil:
		c.handleLogsNotification(env.Params)
	case env.ID != 0 && len(env.Result) > 0:
		var subID int64
		if err := json.Unmarshal(env.Result, &subID); err == nil {
			c.handleSubscribeResponse(env.ID, subID)
		}
	}
}

// handleSubscribeResponse handles subscription confirmation.
func (c *WebSocketClient) handleSubscribeResponse(reqID uint64, subID int64) {
	c.pendingMu.Lock()
	ch, ok := c.pending[reqID]
	if ok {
		delete(c.pending, reqID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- subID
	}
}

// handleLogsNotification dispatches a log notification to its subscriber.
func (c *WebSocketClient) handleLogsNotification(params *wsNotificationParams) {
	value := params.Result.Value
	notif := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if params.Result.Context != nil {
		notif.Slot = params.Result.Context.Slot
	}

	c.subsMu.RLock()
	sub, ok := c.subs[params.Subscription]
	c.subsMu.RUnlock()

	if !ok {
		return
	}
	select {
	case sub.ch <- notif:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WebSocketClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces as a read error in readLoop.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id,omitempty"`
	Method  string                `json:"method,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *RPCError             `json:"error,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot uint64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
