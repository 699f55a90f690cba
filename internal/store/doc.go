// Package store provides persistent storage for the bridge using SQLite.
//
// # Architecture
//
// The package exposes a single Store interface backed by SQLiteStore. The
// store is a traffic ledger: an append-only record of what each session did
// and what the broker sent back.
//
// # Data Model
//
// One model:
//
//   - Entry: A ledger row, either a tool call (kind "call") or a broker
//     message (kind "inbound"), tagged with its session ID
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//
// Database file locations:
//
//   - Development: ~/.local/share/bemfa/bemfa-bridge.db
//   - Testing: :memory: (in-memory database)
//
// # Testing
//
// Use NewSQLiteStore(":memory:") for tests with real SQLite.
package store
