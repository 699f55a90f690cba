// Package dedupe provides request deduplication using a time-based cache
// to reject replayed JSON-RPC request IDs within a configurable window.
package dedupe
