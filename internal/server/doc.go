// Package server exposes the synchronization layer to the web UI.
//
// Reads and mutations are plain JSON endpoints. Live data is pushed over /ws: a client
// subscribes to topics and receives an update on every poll and every invalidation.
// Polling for a client stops when its connection closes.
package server
