// Package ledger provides the GraphQL client for the prediction-market ledger application.
//
// Every call is a POST of {query, variables} to a single endpoint per (chain, application):
//
//	{endpoint}/chains/{chainId}/applications/{applicationId}
//
// Failures are classified into TimeoutError, TransportError, RemoteError and
// UnreachableError so callers can react differently (retry, show message, start service).
package ledger
