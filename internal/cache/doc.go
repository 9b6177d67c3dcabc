// Package cache implements the query cache used by the synchronization layer.
//
// Entries are keyed by query key (e.g. "market:7", "balance:0xab..."). A read is served
// from the cache while it is younger than its max age and has not been invalidated;
// otherwise one fetch per key is in flight at a time and concurrent readers share it.
//
// Every invalidation advances the key's generation. A fetch that started before an
// invalidation may still return its value to its callers, but it is never stored, so a
// read after a mutation never observes pre-mutation data.
package cache
