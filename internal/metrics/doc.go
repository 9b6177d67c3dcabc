// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Ledger request latency and outcomes by operation
//   - Query cache hits, misses and shared fetches
//   - Poll runs and failures by key kind
//   - Market bridge failures
//   - Wallet session phase and balance
//   - HTTP requests and live subscribers
//
// Metrics live on a private registry served by Handler.
package metrics
