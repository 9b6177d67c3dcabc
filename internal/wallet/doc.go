// Package wallet manages the session with a browser signing extension.
//
// The extension is reached through the EIP-1193 style Provider contract
// (request a method, optionally subscribe to pushed events). A Session detects the
// provider within a grace period, drives the connect/disconnect lifecycle and keeps a
// balance snapshot derived from the ledger.
//
// Phases:
//
//	Uninitialized -> Detecting -> Unavailable
//	                           -> Disconnected <-> Connecting <-> Connected
//
// Provider events (accountsChanged, chainChanged, disconnect) and the results of
// connect and balance calls all pass through one dispatch function, so ordering and
// duplicate suppression are enforced in a single place.
package wallet
