// Package livesync implements the synchronization layer between views and the ledger.
//
// Reads go through a query cache and are refreshed on intervals tuned to volatility:
// markets every 5s, balances and user bets every 10s, volume and fees every 30s, and
// the fee rate once per session. Every successful mutation invalidates the reads it
// can change plus the active-markets aggregate, so the mutator's next read is
// authoritative. Payout previews bypass the cache.
//
// Match feed reads follow the feed's own cadence: running matches every minute,
// upcoming matches every five minutes and a single match every 30s.
//
// Failures are never swallowed: the last error of every read and mutation is kept
// until the next success or an explicit Retry.
package livesync
