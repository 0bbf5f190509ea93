package domain

import (
	"time"
)

// SessionPhase is the lifecycle state of a relay session.
type SessionPhase int

const (
	PhaseUninitialized SessionPhase = iota
	PhaseIdle
	PhaseWaiting
	PhaseClosed
)

// String returns the phase name used in logs.
func (p SessionPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting_for_response"
	case PhaseClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// SessionState holds per-session bookkeeping for one chat widget instance.
type SessionState struct {
	CreatedAt        time.Time
	LastPollTime     time.Time
	WaitStartedAt    time.Time // first poll of the current wait
	LastResponseTime time.Time
	LastUserActivity time.Time
	Waiting          bool
	Closed           bool
	ClosedAt         time.Time
}

// NewSessionState creates an idle session first observed at now.
func NewSessionState(now time.Time) *SessionState {
	return &SessionState{
		CreatedAt:     now,
		LastPollTime:  now,
		WaitStartedAt: now,
	}
}

// Phase derives the lifecycle phase from the session fields.
func (s *SessionState) Phase() SessionPhase {
	switch {
	case s == nil:
		return PhaseUninitialized
	case s.Closed:
		return PhaseClosed
	case s.Waiting:
		return PhaseWaiting
	default:
		return PhaseIdle
	}
}

// HasUserActivity returns true once the browser has announced a sent message.
func (s *SessionState) HasUserActivity() bool {
	return !s.LastUserActivity.IsZero()
}
