// Package store provides the relay mailbox interface and its in-memory implementation.
package store

import (
	"time"

	"github.com/ashureev/chat-relay/internal/domain"
)

// Mailbox holds per-session reply queues and session bookkeeping.
// Both share one session-id keyspace and are purged together.
//
// Implementations are not required to be safe for concurrent use; the relay
// service serialises every call.
type Mailbox interface {
	// Enqueue appends a new unconsumed item to the session's queue, creating it if absent.
	Enqueue(sessionID, message string, kind domain.ReplyKind, now time.Time) *domain.ReplyItem

	// DrainUnconsumed returns all unconsumed items in insertion order and marks them consumed.
	DrainUnconsumed(sessionID string) []*domain.ReplyItem

	// PurgeExpired removes items older than the retention window from every queue
	// and deletes queues left empty. It returns the number of items removed.
	PurgeExpired(now time.Time) int

	// HasUnconsumed reports whether the session has undelivered items.
	HasUnconsumed(sessionID string) bool

	// HasUnconsumedKind reports whether the session has an undelivered item with
	// the given kind and message.
	HasUnconsumedKind(sessionID string, kind domain.ReplyKind, message string) bool

	// ClearQueue drops every queued item for the session.
	ClearQueue(sessionID string)

	// QueueLen returns the number of queued items (consumed or not) for the session.
	QueueLen(sessionID string) int

	// Session returns the session state, if tracked.
	Session(sessionID string) (*domain.SessionState, bool)

	// EnsureSession returns the session state, creating an idle one at now if absent.
	EnsureSession(sessionID string, now time.Time) (state *domain.SessionState, created bool)

	// DeleteSession removes both the session state and its queue.
	DeleteSession(sessionID string)

	// RangeSessions calls fn for each tracked session. fn may call DeleteSession
	// for the session it was given.
	RangeSessions(fn func(sessionID string, state *domain.SessionState))

	// SessionCount returns the number of tracked sessions.
	SessionCount() int
}
