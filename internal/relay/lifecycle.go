package relay

import (
	"time"

	"github.com/ashureev/chat-relay/internal/domain"
)

// Timing holds the windows that drive the session lifecycle.
type Timing struct {
	Retention       time.Duration // reply item lifetime, also the abandoned-session window
	Inactivity      time.Duration // user inactivity before auto-close
	MaxWait         time.Duration // longest a single wait stays pending
	PollInterval    time.Duration // expected client poll cadence
	CloseGrace      time.Duration // delay before a delivered close is forgotten
	PollStreakReset time.Duration // poll gap that starts a new wait window
}

// DefaultTiming returns the stock relay windows.
func DefaultTiming() Timing {
	return Timing{
		Retention:       5 * time.Minute,
		Inactivity:      5 * time.Minute,
		MaxWait:         60 * time.Second,
		PollInterval:    2 * time.Second,
		CloseGrace:      30 * time.Second,
		PollStreakReset: 30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultTiming.
func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.Retention <= 0 {
		t.Retention = d.Retention
	}
	if t.Inactivity <= 0 {
		t.Inactivity = d.Inactivity
	}
	if t.MaxWait <= 0 {
		t.MaxWait = d.MaxWait
	}
	if t.PollInterval <= 0 {
		t.PollInterval = d.PollInterval
	}
	if t.CloseGrace <= 0 {
		t.CloseGrace = d.CloseGrace
	}
	if t.PollStreakReset < 0 {
		t.PollStreakReset = 0
	}
	return t
}

// Tracker applies lifecycle transitions to session state. It owns no state
// itself; callers pass the session to mutate.
//
//	uninitialized -> idle              first GET/PUT
//	idle          -> waiting           poll cadence within 3x PollInterval, or PUT
//	waiting       -> idle              reply delivered, or MaxWait elapsed
//	any           -> closed            user inactive longer than Inactivity
//	closed        -> idle/waiting      PUT only
type Tracker struct {
	timing Timing
}

// NewTracker creates a tracker. Zero fields in timing take their defaults.
func NewTracker(timing Timing) *Tracker {
	return &Tracker{timing: timing.withDefaults()}
}

// ObservePoll records a poll and enters the waiting state when the client is
// polling at the expected cadence.
func (t *Tracker) ObservePoll(s *domain.SessionState, now time.Time) {
	gap := now.Sub(s.LastPollTime)
	s.LastPollTime = now

	if s.Waiting || s.Closed {
		return
	}
	if t.timing.PollStreakReset > 0 && gap > t.timing.PollStreakReset {
		// The client came back after a pause and starts a fresh wait.
		s.WaitStartedAt = now
		s.Waiting = true
		return
	}
	if gap > 0 && gap < 3*t.timing.PollInterval && now.Sub(s.WaitStartedAt) < t.timing.MaxWait {
		s.Waiting = true
	}
}

// RecordActivity marks that the user just sent a message. The session starts
// a fresh wait and is reopened if it was closed. It returns true when the
// session was reopened; the caller must discard the old queue.
func (t *Tracker) RecordActivity(s *domain.SessionState, now time.Time) bool {
	reopened := s.Closed

	s.LastUserActivity = now
	s.Waiting = true
	s.WaitStartedAt = now

	if reopened {
		s.Closed = false
		s.ClosedAt = time.Time{}
		s.LastResponseTime = time.Time{}
	}
	return reopened
}

// MarkDelivered satisfies the current wait after a batch reached the client.
func (t *Tracker) MarkDelivered(s *domain.SessionState, now time.Time) {
	s.LastResponseTime = now
	s.Waiting = false
	s.WaitStartedAt = now
}

// ResolveWait reports whether the client should keep waiting. An elapsed
// wait is abandoned and the session returns to idle.
func (t *Tracker) ResolveWait(s *domain.SessionState, now time.Time) (pending bool, remaining, elapsed time.Duration) {
	elapsed = now.Sub(s.WaitStartedAt)
	if !s.Waiting || s.Closed {
		return false, 0, elapsed
	}
	if elapsed >= t.timing.MaxWait {
		s.Waiting = false
		return false, 0, elapsed
	}
	return true, t.timing.MaxWait - elapsed, elapsed
}

// ShouldClose reports whether the session has been inactive long enough to
// auto-close. Sessions that never recorded user activity are never closed.
func (t *Tracker) ShouldClose(s *domain.SessionState, now time.Time) bool {
	if s.Closed || !s.HasUserActivity() {
		return false
	}
	return now.Sub(s.LastUserActivity) > t.timing.Inactivity
}

// Close marks the session closed at now.
func (t *Tracker) Close(s *domain.SessionState, now time.Time) {
	s.Closed = true
	s.ClosedAt = now
	s.Waiting = false
}

// ShouldForget reports whether the session state can be dropped. Closed
// sessions are kept until their queue is delivered and the grace period has
// passed; open sessions are dropped once nothing was heard for Retention.
func (t *Tracker) ShouldForget(s *domain.SessionState, hasUnconsumed bool, now time.Time) bool {
	if s.Closed {
		return !hasUnconsumed && now.Sub(s.ClosedAt) > t.timing.CloseGrace
	}
	lastSeen := s.LastPollTime
	if s.LastUserActivity.After(lastSeen) {
		lastSeen = s.LastUserActivity
	}
	return now.Sub(lastSeen) > t.timing.Retention
}
