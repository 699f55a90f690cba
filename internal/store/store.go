// ABOUTME: Store interface and data types for bemfa-bridge persistence
// ABOUTME: Defines the traffic ledger entry recorded per tool call and broker message

package store

import (
	"context"
	"time"
)

// Entry kind constants.
const (
	KindCall    = "call"    // Tool call that reached the broker or changed state
	KindInbound = "inbound" // Message received from the broker
)

// Entry is one row of the traffic ledger: either a tool call a session made
// or a broker message it received.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Tool      string    `json:"tool,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the traffic ledger.
type Store interface {
	// RecordEntry appends one ledger entry. Missing ID and CreatedAt are
	// filled in.
	RecordEntry(ctx context.Context, entry *Entry) error

	// RecentEntries returns the most recent entries, newest first. An empty
	// sessionID returns entries across all sessions. A non-positive limit
	// uses the default.
	RecentEntries(ctx context.Context, sessionID string, limit int) ([]*Entry, error)

	// Close releases the underlying database.
	Close() error
}
