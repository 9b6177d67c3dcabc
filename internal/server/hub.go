package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/livepredict/internal/livesync"
	"github.com/rickgao/livepredict/internal/metrics"
	"github.com/rickgao/livepredict/internal/wallet"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	outboxInitial = 64
	outboxMax     = 1024
)

// TopicWallet streams wallet session snapshots.
const TopicWallet = "wallet"

// Client actions.
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
	actionRetry       = "retry"
)

// Server message types.
const (
	msgUpdate       = "update"
	msgSubscribed   = "subscribed"
	msgUnsubscribed = "unsubscribed"
	msgError        = "error"
)

var (
	errOutboxClosed = errors.New("outbox closed")
	errOutboxFull   = errors.New("outbox full")
)

// clientMessage is a frame sent by a client.
type clientMessage struct {
	Action string   `json:"action"` // subscribe, unsubscribe, retry
	Topics []string `json:"topics"`
	Key    string   `json:"key"` // retry only
}

// serverMessage is a frame sent to a client.
type serverMessage struct {
	Type   string   `json:"type"`
	Topic  string   `json:"topic,omitempty"`
	Topics []string `json:"topics,omitempty"`
	Data   any      `json:"data,omitempty"`
	Error  string   `json:"error,omitempty"`
	Kind   string   `json:"kind,omitempty"`
}

// Hub owns the WebSocket clients. Each client gets its own view, so its polling
// stops when the connection goes away.
type Hub struct {
	svc      *livesync.Service
	session  *wallet.Session
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	ctx     context.Context
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a hub. Origins are checked against allowedOrigins; an empty list
// allows every origin.
func NewHub(svc *livesync.Service, session *wallet.Session, allowedOrigins []string, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		svc:     svc,
		session: session,
		metrics: m,
		logger:  logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(allowedOrigins, origin)
			},
		},
		ctx:     context.Background(),
		clients: make(map[*client]struct{}),
	}
}

// Start sets the context that bounds every client. Cancelling it closes the hub.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
	context.AfterFunc(ctx, h.Close)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their teardown.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown(websocket.CloseGoingAway, "server shutting down")
	}
	h.wg.Wait()
}

// HandleWS upgrades the request and serves the client until it disconnects.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	parent := h.ctx
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(parent)
	c := &client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		out:    newOutbox[[]byte](outboxInitial, outboxMax),
		topics: make(map[string]bool),
	}
	c.view = h.svc.NewView(ctx)

	if !h.add(c) {
		c.shutdown(websocket.CloseGoingAway, "server shutting down")
		c.teardown()
		return
	}

	go c.writePump()
	go c.pingLoop()
	go c.readPump()
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	n := len(h.clients)

	if h.metrics != nil {
		h.metrics.LiveClients.Inc()
	}
	h.logger.Info("client connected", "client_id", c.id, "total_clients", n)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if h.metrics != nil {
		h.metrics.LiveClients.Dec()
	}
	h.logger.Info("client disconnected", "client_id", c.id, "total_clients", n)
	h.wg.Done()
}

// client is one WebSocket connection.
type client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	view   *livesync.View
	out    *outbox[[]byte]

	mu          sync.Mutex
	topics      map[string]bool
	walletUnsub func()

	shutdownOnce sync.Once
}

// readPump handles subscription frames and owns the client's teardown.
func (c *client) readPump() {
	defer func() {
		c.teardown()
		c.hub.remove(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("unexpected close", "client_id", c.id, "err", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.push(serverMessage{Type: msgError, Error: "invalid message: " + err.Error(), Kind: kindBadRequest})
			continue
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg clientMessage) {
	switch msg.Action {
	case actionSubscribe:
		var ok []string
		for _, t := range msg.Topics {
			if err := c.subscribe(t); err != nil {
				c.push(serverMessage{Type: msgError, Topic: t, Error: err.Error(), Kind: errorKind(err)})
				continue
			}
			ok = append(ok, t)
		}
		if len(ok) > 0 {
			c.push(serverMessage{Type: msgSubscribed, Topics: ok})
		}

	case actionUnsubscribe:
		for _, t := range msg.Topics {
			c.unsubscribe(t)
		}
		c.push(serverMessage{Type: msgUnsubscribed, Topics: msg.Topics})

	case actionRetry:
		if msg.Key == "" {
			c.push(serverMessage{Type: msgError, Error: "retry requires a key", Kind: kindBadRequest})
			return
		}
		c.hub.svc.Retry(msg.Key)

	default:
		c.push(serverMessage{Type: msgError, Error: "unknown action " + msg.Action, Kind: kindBadRequest})
	}
}

func (c *client) subscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.topics[topic] {
		return nil
	}

	if topic == TopicWallet {
		c.walletUnsub = c.hub.session.Subscribe(c.pushWallet)
		c.pushWallet(c.hub.session.State())
	} else if err := c.view.Watch(topic, c.pushUpdate); err != nil {
		return err
	}

	c.topics[topic] = true
	if m := c.hub.metrics; m != nil {
		m.Subscriptions.Inc()
	}
	return nil
}

func (c *client) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.topics[topic] {
		return
	}
	if topic == TopicWallet {
		c.walletUnsub()
		c.walletUnsub = nil
	} else {
		c.view.Unwatch(topic)
	}

	delete(c.topics, topic)
	if m := c.hub.metrics; m != nil {
		m.Subscriptions.Dec()
	}
}

func (c *client) pushUpdate(u livesync.Update) {
	msg := serverMessage{Type: msgUpdate, Topic: u.Topic, Data: u.Data}
	if u.Err != nil {
		msg.Error = u.Err.Error()
		msg.Kind = errorKind(u.Err)
		// The wallet snapshot stays meaningful when its balance fails.
		if u.Topic != livesync.TopicBalance {
			msg.Data = nil
		}
	}
	c.push(msg)
}

func (c *client) pushWallet(st wallet.State) {
	c.push(serverMessage{Type: msgUpdate, Topic: TopicWallet, Data: st})
}

// push queues msg. A client that cannot keep up is disconnected.
func (c *client) push(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("marshal message", "topic", msg.Topic, "err", err)
		return
	}

	switch err := c.out.Send(data); {
	case errors.Is(err, errOutboxFull):
		c.hub.logger.Warn("dropping slow client", "client_id", c.id, "queued", c.out.Len())
		c.shutdown(websocket.ClosePolicyViolation, "too slow")
	case err != nil:
		// Closed.
	}
}

func (c *client) writePump() {
	for {
		data, ok := c.out.Receive()
		if !ok {
			return
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.hub.logger.Debug("write failed", "client_id", c.id, "err", err)
			c.conn.Close()
			return
		}
	}
}

func (c *client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// shutdown sends a close frame and closes the connection, which ends readPump.
// It never blocks on the view, so it is safe to call from an update callback.
func (c *client) shutdown(code int, reason string) {
	c.shutdownOnce.Do(func() {
		c.cancel()
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		c.conn.Close()
	})
}

// teardown stops polling and releases the connection.
func (c *client) teardown() {
	c.cancel()
	c.view.Close()

	c.mu.Lock()
	if c.walletUnsub != nil {
		c.walletUnsub()
		c.walletUnsub = nil
	}
	n := len(c.topics)
	c.topics = map[string]bool{}
	c.mu.Unlock()

	if m := c.hub.metrics; m != nil && n > 0 {
		m.Subscriptions.Sub(float64(n))
	}

	c.out.Close()
	c.conn.Close()
}
