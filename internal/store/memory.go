package store

import (
	"time"

	"github.com/ashureev/chat-relay/internal/domain"
	"github.com/google/uuid"
)

// DefaultRetention is how long a reply item survives, consumed or not.
const DefaultRetention = 5 * time.Minute

// MemoryMailbox implements Mailbox with process-local maps.
type MemoryMailbox struct {
	queues    map[string][]*domain.ReplyItem
	sessions  map[string]*domain.SessionState
	retention time.Duration
}

// NewMemoryMailbox creates an empty mailbox. A non-positive retention falls
// back to DefaultRetention.
func NewMemoryMailbox(retention time.Duration) *MemoryMailbox {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryMailbox{
		queues:    make(map[string][]*domain.ReplyItem),
		sessions:  make(map[string]*domain.SessionState),
		retention: retention,
	}
}

// Enqueue appends a new unconsumed item to the session's queue.
func (m *MemoryMailbox) Enqueue(sessionID, message string, kind domain.ReplyKind, now time.Time) *domain.ReplyItem {
	item := &domain.ReplyItem{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Message:   message,
		Kind:      kind,
		CreatedAt: now,
	}
	m.queues[sessionID] = append(m.queues[sessionID], item)
	return item
}

// DrainUnconsumed returns unconsumed items in FIFO order and marks them consumed.
func (m *MemoryMailbox) DrainUnconsumed(sessionID string) []*domain.ReplyItem {
	var drained []*domain.ReplyItem
	for _, item := range m.queues[sessionID] {
		if item.Consumed {
			continue
		}
		item.Consumed = true
		drained = append(drained, item)
	}
	return drained
}

// PurgeExpired removes items older than the retention window.
func (m *MemoryMailbox) PurgeExpired(now time.Time) int {
	removed := 0
	for sessionID, queue := range m.queues {
		kept := queue[:0]
		for _, item := range queue {
			if item.ExpiredAt(now, m.retention) {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		if len(kept) == 0 {
			delete(m.queues, sessionID)
			continue
		}
		// Clear the tail so dropped items can be collected.
		for i := len(kept); i < len(queue); i++ {
			queue[i] = nil
		}
		m.queues[sessionID] = kept
	}
	return removed
}

// HasUnconsumed reports whether the session has undelivered items.
func (m *MemoryMailbox) HasUnconsumed(sessionID string) bool {
	for _, item := range m.queues[sessionID] {
		if !item.Consumed {
			return true
		}
	}
	return false
}

// HasUnconsumedKind reports whether a matching undelivered item exists.
func (m *MemoryMailbox) HasUnconsumedKind(sessionID string, kind domain.ReplyKind, message string) bool {
	for _, item := range m.queues[sessionID] {
		if !item.Consumed && item.Kind == kind && item.Message == message {
			return true
		}
	}
	return false
}

// ClearQueue drops every queued item for the session.
func (m *MemoryMailbox) ClearQueue(sessionID string) {
	delete(m.queues, sessionID)
}

// QueueLen returns the number of queued items for the session.
func (m *MemoryMailbox) QueueLen(sessionID string) int {
	return len(m.queues[sessionID])
}

// Session returns the session state, if tracked.
func (m *MemoryMailbox) Session(sessionID string) (*domain.SessionState, bool) {
	s, ok := m.sessions[sessionID]
	return s, ok
}

// EnsureSession returns the session state, creating it if absent.
func (m *MemoryMailbox) EnsureSession(sessionID string, now time.Time) (*domain.SessionState, bool) {
	if s, ok := m.sessions[sessionID]; ok {
		return s, false
	}
	s := domain.NewSessionState(now)
	m.sessions[sessionID] = s
	return s, true
}

// DeleteSession removes both the session state and its queue.
func (m *MemoryMailbox) DeleteSession(sessionID string) {
	delete(m.sessions, sessionID)
	delete(m.queues, sessionID)
}

// RangeSessions calls fn for each tracked session.
func (m *MemoryMailbox) RangeSessions(fn func(sessionID string, state *domain.SessionState)) {
	for id, s := range m.sessions {
		fn(id, s)
	}
}

// SessionCount returns the number of tracked sessions.
func (m *MemoryMailbox) SessionCount() int {
	return len(m.sessions)
}
