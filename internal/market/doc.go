// Package market implements the Market Bridge: idempotent resolution of an external
// match to its ledger markets.
//
// The bridge owns a Cache keyed by match id. GetOrCreateMarkets issues at most one
// creation mutation per match, even under concurrent callers (single-flight keyed by
// match id). Ledger failures are reported and degrade to an empty result instead of
// propagating to the caller.
package market
