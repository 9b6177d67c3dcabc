package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
)

// rpcVersion is the JSON-RPC protocol version sent with every request.
const rpcVersion = "2.0"

// eventMethod is the method name of pushed provider events.
const eventMethod = "event"

// rpcRequest is a JSON-RPC request sent to the bridge.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcMessage is any message received from the bridge: a response or a pushed event.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the error member of a JSON-RPC response.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ProviderEvent is the params payload of a pushed event.
type ProviderEvent struct {
	Event string          `json:"event"` // "accountsChanged", "chainChanged", "disconnect"
	Data  json.RawMessage `json:"data"`
}

// ClientConfig configures a bridge client.
type ClientConfig struct {
	URL            string        // WebSocket URL (e.g., ws://127.0.0.1:8546/rpc)
	Origin         string        // Origin header presented to the bridge
	PingInterval   time.Duration // How often to ping the bridge
	PingTimeout    time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout   time.Duration // Write deadline for sends
	RequestTimeout time.Duration // Applied when the caller's context has no deadline
	EventBuffer    int           // Pending event queue size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:   30 * time.Second,
		PingTimeout:    90 * time.Second,
		WriteTimeout:   5 * time.Second,
		RequestTimeout: 30 * time.Second,
		EventBuffer:    64,
	}
}

// BridgeConfig configures reconnection.
type BridgeConfig struct {
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
}

// DefaultBridgeConfig returns sensible defaults.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}
