// Package model defines shared data types used across the livepredict bridge.
//
// Ledger types mirror the camel-cased shape of the ledger application's markets and bets
// after the snake_case wire fields have been translated by package ledger.
//
// Conventions:
//   - Amounts and pools: integer ledger units
//   - Ledger timestamps: int64 seconds since Unix epoch
//   - Bet odds: fixed-point integers scaled by OddsScale
//   - Wallet balances: decimal.Decimal
package model
