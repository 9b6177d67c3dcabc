// Package connection implements the signing bridge client.
//
// The signing extension is reached over a WebSocket speaking JSON-RPC 2.0:
//   - Requests are matched to responses by id
//   - Pushed {"method":"event"} messages are delivered to registered handlers in order
//   - A dropped connection fails pending requests and emits a "disconnect" event
//   - The Bridge keeps the connection alive with exponential backoff reconnects
//
// Client satisfies wallet.Provider and wallet.EventSource; Bridge satisfies wallet.Locator.
package connection
