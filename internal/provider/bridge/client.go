// Package bridge talks to an external wallet over a WebSocket JSON-RPC
// bridge. Requests are JSON-RPC 2.0 calls; wallet notifications arrive as
// JSON-RPC notifications whose method is the event name
// ("accountsChanged", "chainChanged") and whose params are the payload.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ThetaSpace/tradesphere-swap/internal/provider"
)

// ConnectionState is the transport state of the bridge
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of the state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Config bridge client configuration
type Config struct {
	ServerURL            string        // WebSocket bridge address
	APIToken             string        // Bearer token sent on the handshake
	ReconnectInterval    time.Duration // Base reconnection interval
	MaxReconnectAttempts int           // 0 = unlimited
	HeartbeatInterval    time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	RequestTimeout       time.Duration // 0 = bounded by the caller's context only
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		ReconnectInterval: 2 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcMessage struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      *uint64            `json:"id,omitempty"`
	Method  string             `json:"method,omitempty"`
	Params  json.RawMessage    `json:"params,omitempty"`
	Result  json.RawMessage    `json:"result,omitempty"`
	Error   *provider.RPCError `json:"error,omitempty"`
}

// Client is a provider.Provider backed by a WebSocket bridge
type Client struct {
	config  *Config
	logger  *slog.Logger
	emitter *provider.Emitter

	conn    *websocket.Conn
	state   atomic.Int32
	mu      sync.RWMutex
	writeMu sync.Mutex

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan *rpcMessage

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeCh    chan struct{}
	reconnectC chan struct{}

	backoff         *Backoff
	heartbeat       *Heartbeat
	heartbeatCancel context.CancelFunc
	isReconnect     bool

	reconnectedHandler func()
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a bridge client; call Connect before issuing requests
func NewClient(config *Config, logger *slog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		config:     config,
		logger:     logger.With("component", "WalletBridge"),
		emitter:    provider.NewEmitter(),
		pending:    make(map[uint64]chan *rpcMessage),
		closeCh:    make(chan struct{}),
		reconnectC: make(chan struct{}, 1),
		backoff: NewBackoff(BackoffConfig{
			InitialInterval: config.ReconnectInterval,
			MaxAttempts:     config.MaxReconnectAttempts,
		}),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// Connect dials the bridge
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return fmt.Errorf("bridge already connected or connecting")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.closeCh = make(chan struct{})
	c.mu.Unlock()

	if err := c.doConnect(); err != nil {
		c.mu.Lock()
		c.cancel()
		c.cancel = nil
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) doConnect() error {
	c.SetState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	if c.config.APIToken != "" {
		header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	conn, resp, err := dialer.DialContext(c.ctx, c.config.ServerURL, header)
	if err != nil {
		c.SetState(StateDisconnected)
		if resp != nil {
			c.logger.Error("Bridge dial failed", "status", resp.StatusCode, "url", c.config.ServerURL, "error", err)
		} else {
			c.logger.Error("Bridge dial failed", "url", c.config.ServerURL, "error", err)
		}
		return fmt.Errorf("%w: dial %s: %v", provider.ErrNotConnected, c.config.ServerURL, err)
	}

	conn.SetPongHandler(func(string) error {
		c.onReceived()
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.stopHeartbeatLocked()
	c.heartbeat = NewHeartbeat(c, c.config.HeartbeatInterval, c.config.ReadTimeout, c.logger)
	var hbCtx context.Context
	hbCtx, c.heartbeatCancel = context.WithCancel(c.ctx)
	hb := c.heartbeat
	c.mu.Unlock()

	c.SetState(StateConnected)
	c.logger.Info("Bridge connected", "url", c.config.ServerURL)

	c.wg.Add(2)
	go c.readLoop(conn)
	go hb.Start(hbCtx, &c.wg)

	c.backoff.Reset()

	if c.isReconnect {
		c.isReconnect = false
		c.mu.RLock()
		handler := c.reconnectedHandler
		c.mu.RUnlock()
		if handler != nil {
			go handler()
		}
	}
	return nil
}

// Close shuts the bridge down and fails outstanding requests
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	c.cancel = nil
	c.stopHeartbeatLocked()
	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}
	conn := c.conn
	c.mu.Unlock()

	// unblock the read loop
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}

	c.wg.Wait()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	c.failPending()
	c.SetState(StateDisconnected)
	c.logger.Info("Bridge connection closed")
	return nil
}

// Request sends a JSON-RPC call and waits for its response
func (c *Client) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, provider.ErrNotConnected
	}
	if params == nil {
		params = []any{}
	}

	id := c.nextID.Add(1)
	ch := make(chan *rpcMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}
	if err := c.write(data); err != nil {
		return nil, err
	}
	c.logger.Debug("Request sent", "id", id, "method", method)

	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	select {
	case msg := <-ch:
		if msg == nil {
			return nil, fmt.Errorf("%s: %w", method, provider.ErrNotConnected)
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers a handler for a wallet notification
func (c *Client) Subscribe(event provider.Event, handler func(json.RawMessage)) provider.Subscription {
	return c.emitter.Subscribe(event, handler)
}

// SetReconnectedHandler sets the callback run after a successful reconnect
func (c *Client) SetReconnectedHandler(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectedHandler = handler
}

// IsConnected checks if connected
func (c *Client) IsConnected() bool {
	return c.GetState() == StateConnected
}

// GetState gets current connection state
func (c *Client) GetState() ConnectionState {
	return ConnectionState(c.state.Load())
}

// SetState sets connection state
func (c *Client) SetState(state ConnectionState) {
	old := ConnectionState(c.state.Swap(int32(state)))
	if old != state {
		c.logger.Info("Bridge state changed", "from", old.String(), "to", state.String())
	}
}

// Ping writes a WebSocket ping control frame
func (c *Client) Ping() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return provider.ErrNotConnected
	}
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return provider.ErrNotConnected
	}

	if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		c.TriggerReconnect()
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.TriggerReconnect()
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *Client) onReceived() {
	c.mu.RLock()
	hb := c.heartbeat
	c.mu.RUnlock()
	if hb != nil {
		hb.OnReceived()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		select {
		case <-c.closeCh:
			return
		case <-c.ctx.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
			c.logger.Error("Failed to set read deadline", "error", err)
			c.TriggerReconnect()
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("Bridge closed by server")
			} else {
				c.logger.Error("Bridge read error", "error", err)
			}
			c.TriggerReconnect()
			return
		}
		c.onReceived()

		if msgType != websocket.TextMessage {
			c.logger.Warn("Ignoring non-text frame", "type", msgType)
			continue
		}

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Error("Failed to decode bridge message", "error", err)
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *rpcMessage) {
	if msg.Method != "" {
		c.logger.Debug("Notification received", "event", msg.Method)
		c.emitter.Emit(provider.Event(msg.Method), msg.Params)
		return
	}
	if msg.ID == nil {
		c.logger.Warn("Dropping message without id or method")
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[*msg.ID]
	delete(c.pending, *msg.ID)
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("Response for unknown request", "id", *msg.ID)
		return
	}
	ch <- msg
}

// failPending wakes every waiting Request with a nil message
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- nil:
		default:
		}
		delete(c.pending, id)
	}
}

// TriggerReconnect starts the reconnect loop unless one is running
func (c *Client) TriggerReconnect() {
	select {
	case c.reconnectC <- struct{}{}:
		go c.reconnectLoop()
	default:
	}
}

func (c *Client) reconnectLoop() {
	defer func() {
		select {
		case <-c.reconnectC:
		default:
		}
	}()

	c.mu.Lock()
	c.stopHeartbeatLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	ctx, closeCh := c.ctx, c.closeCh
	c.mu.Unlock()

	c.SetState(StateDisconnected)
	c.failPending()

	for {
		select {
		case <-closeCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		interval, ok := c.backoff.Next()
		if !ok {
			c.logger.Error("Max reconnect attempts reached, giving up")
			return
		}
		c.logger.Info("Reconnecting", "interval", interval, "attempt", c.backoff.Attempts())

		select {
		case <-time.After(interval):
		case <-closeCh:
			return
		case <-ctx.Done():
			return
		}

		c.isReconnect = true
		if err := c.doConnect(); err != nil {
			c.logger.Error("Reconnect failed", "error", err)
			c.isReconnect = false
			continue
		}
		return
	}
}

// stopHeartbeatLocked must be called with c.mu held
func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatCancel != nil {
		c.heartbeatCancel()
		c.heartbeatCancel = nil
	}
	c.heartbeat = nil
}
