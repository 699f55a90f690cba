// ABOUTME: Session type binding one SSE client to its broker bridge.
// ABOUTME: Queues outbound events and coordinates teardown exactly once.

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/bemfa-bridge/internal/bemfa"
)

// eventBuffer bounds the outbound queue per session. A client that stops
// reading its SSE stream eventually blocks the pushing goroutine instead of
// growing memory without limit.
const eventBuffer = 64

// Event is one outbound SSE event for a session's stream.
type Event struct {
	Name string
	Data []byte
}

// Session is one logical client: an SSE stream plus an independent broker
// bridge. The bridge is attached by the transport right after creation and
// is never replaced afterwards.
type Session struct {
	ID        string
	CreatedAt time.Time
	Bridge    *bemfa.Bridge

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func newSession() *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
	}
}

// Push queues an event for the session's SSE stream. It blocks while the
// buffer is full and reports false once the session is closed; events pushed
// from a single goroutine arrive in push order.
func (s *Session) Push(name string, data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- Event{Name: name, Data: data}:
		return true
	case <-s.done:
		return false
	}
}

// Events is the outbound queue the SSE handler drains.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close tears the session down: the broker connection is force-closed and
// the done channel unblocks any pending Push or stream read. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.Bridge != nil {
			s.Bridge.Shutdown()
		}
		close(s.done)
	})
}
