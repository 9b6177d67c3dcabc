package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/livepredict/internal/wallet"
)

// Client is a JSON-RPC connection to the signing bridge.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	nextID atomic.Int64

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	link       *link
	connected  bool
	lastPingAt time.Time
	closed     bool

	pendingMu sync.Mutex
	pending   map[int64]chan rpcMessage

	handlersMu sync.RWMutex
	handlers   map[string][]func(json.RawMessage)

	events    chan ProviderEvent
	errors    chan error
	stop      chan struct{}
	startOnce sync.Once
}

// link is one dialed WebSocket. done is closed when the link drops.
type link struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

// NewClient creates a new bridge client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultClientConfig().EventBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultClientConfig().PingInterval
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		pending:  make(map[int64]chan rpcMessage),
		handlers: make(map[string][]func(json.RawMessage)),
		events:   make(chan ProviderEvent, cfg.EventBuffer),
		errors:   make(chan error, 1),
		stop:     make(chan struct{}),
	}
}

// Connect dials the bridge. It may be called again after the connection dropped.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	l := &link{conn: conn, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.link = l
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	c.startOnce.Do(func() { go c.eventLoop() })
	go c.readLoop(l)
	go c.heartbeatLoop(l)

	c.logger.Debug("signing bridge connected", "url", c.cfg.URL)

	return nil
}

// Close gracefully closes the connection. The client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	l := c.link
	c.mu.Unlock()

	close(c.stop)

	if l != nil {
		c.writeMu.Lock()
		l.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		l.close()
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Errors returns a channel of connection errors.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// On registers a handler for a pushed provider event.
// Handlers run one at a time, in arrival order.
func (c *Client) On(event string, handler func(data json.RawMessage)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// Request sends a JSON-RPC request and waits for its response.
// A JSON-RPC error is returned as *wallet.ProviderError.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.RLock()
	l, connected := c.link, c.connected
	c.mu.RUnlock()
	if !connected {
		return nil, ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok && c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	id := c.nextID.Add(1)
	respCh := make(chan rpcMessage, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(rpcRequest{
		JSONRPC: rpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	if err := c.send(l, data); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
		}
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrNotConnected
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, &wallet.ProviderError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	}
}

func (c *Client) send(l *link, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastPingAt = time.Now()
	c.mu.Unlock()
}

// readLoop reads messages until the link drops.
func (c *Client) readLoop(l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			c.drop(l, err)
			return
		}
		c.handleMessage(data)
	}
}

// drop marks the link dead and, unless the client was closed, reports the error and
// emits a disconnect event.
func (c *Client) drop(l *link, err error) {
	l.close()

	c.mu.Lock()
	current := c.link == l && c.connected
	if current {
		c.connected = false
	}
	closed := c.closed
	c.mu.Unlock()

	if closed || !current {
		return
	}

	c.logger.Warn("signing bridge connection lost", "error", err)

	select {
	case c.errors <- err:
	default:
	}
	c.queueEvent(ProviderEvent{Event: wallet.EventDisconnect, Data: json.RawMessage(`null`)})
}

func (c *Client) handleMessage(data []byte) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("ignoring malformed bridge message", "error", err)
		return
	}

	switch {
	case msg.Method == eventMethod:
		var ev ProviderEvent
		if err := json.Unmarshal(msg.Params, &ev); err != nil || ev.Event == "" {
			c.logger.Debug("ignoring malformed event", "error", err)
			return
		}
		c.queueEvent(ev)

	case msg.ID != nil:
		c.routeResponse(*msg.ID, msg)

	default:
		c.logger.Debug("ignoring bridge message", "method", msg.Method)
	}
}

// routeResponse sends a response to the waiting goroutine.
func (c *Client) routeResponse(id int64, msg rpcMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("response for unknown request", "id", id)
		return
	}

	select {
	case ch <- msg:
	default:
	}
}

func (c *Client) queueEvent(ev ProviderEvent) {
	select {
	case c.events <- ev:
	case <-c.stop:
	default:
		c.logger.Warn("event buffer full, dropping event", "event", ev.Event)
	}
}

// eventLoop delivers events outside the read loop so handlers may issue requests.
func (c *Client) eventLoop() {
	for {
		select {
		case <-c.stop:
			return
		case ev := <-c.events:
			c.handlersMu.RLock()
			handlers := append([]func(json.RawMessage){}, c.handlers[ev.Event]...)
			c.handlersMu.RUnlock()

			for _, h := range handlers {
				h(ev.Data)
			}
		}
	}
}

// heartbeatLoop pings the bridge and drops stale links.
func (c *Client) heartbeatLoop(l *link) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := l.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if c.cfg.PingTimeout > 0 && time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				c.drop(l, ErrStaleConnection)
				return
			}
		}
	}
}
