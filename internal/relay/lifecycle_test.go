package relay

import (
	"testing"
	"time"

	"github.com/ashureev/chat-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestTracker_ObservePollCadence(t *testing.T) {
	tests := []struct {
		name        string
		gap         time.Duration
		waitAge     time.Duration
		wantWaiting bool
	}{
		{name: "same instant", gap: 0, wantWaiting: false},
		{name: "regular cadence", gap: 2 * time.Second, wantWaiting: true},
		{name: "just under 3x interval", gap: 5999 * time.Millisecond, wantWaiting: true},
		{name: "at 3x interval", gap: 6 * time.Second, wantWaiting: false},
		{name: "wait window already spent", gap: 2 * time.Second, waitAge: 61 * time.Second, wantWaiting: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(DefaultTiming())
			s := domain.NewSessionState(epoch)
			s.WaitStartedAt = epoch.Add(-tt.waitAge)

			now := epoch.Add(tt.gap)
			tr.ObservePoll(s, now)

			assert.Equal(t, tt.wantWaiting, s.Waiting)
			assert.Equal(t, now, s.LastPollTime)
		})
	}
}

func TestTracker_PollStreakResetStartsNewWindow(t *testing.T) {
	tr := NewTracker(DefaultTiming())
	s := domain.NewSessionState(epoch)

	later := epoch.Add(45 * time.Second)
	tr.ObservePoll(s, later)
	assert.True(t, s.Waiting)
	assert.Equal(t, later, s.WaitStartedAt)

	pending, remaining, _ := tr.ResolveWait(s, later.Add(2*time.Second))
	assert.True(t, pending)
	assert.Equal(t, 58*time.Second, remaining)
}

func TestTracker_ResolveWaitExpires(t *testing.T) {
	tr := NewTracker(DefaultTiming())
	s := domain.NewSessionState(epoch)
	tr.RecordActivity(s, epoch)

	pending, remaining, elapsed := tr.ResolveWait(s, epoch.Add(10*time.Second))
	assert.True(t, pending)
	assert.Equal(t, 50*time.Second, remaining)
	assert.Equal(t, 10*time.Second, elapsed)

	pending, remaining, _ = tr.ResolveWait(s, epoch.Add(60*time.Second))
	assert.False(t, pending)
	assert.Zero(t, remaining)
	assert.Equal(t, domain.PhaseIdle, s.Phase())
}

func TestTracker_CloseAndReopen(t *testing.T) {
	tr := NewTracker(DefaultTiming())
	s := domain.NewSessionState(epoch)

	assert.False(t, tr.ShouldClose(s, epoch.Add(time.Hour)), "sessions without user activity never close")

	tr.RecordActivity(s, epoch)
	assert.False(t, tr.ShouldClose(s, epoch.Add(5*time.Minute)))
	require.True(t, tr.ShouldClose(s, epoch.Add(5*time.Minute+time.Millisecond)))

	closedAt := epoch.Add(6 * time.Minute)
	tr.Close(s, closedAt)
	assert.Equal(t, domain.PhaseClosed, s.Phase())
	assert.False(t, tr.ShouldClose(s, closedAt.Add(time.Hour)), "closing is idempotent")

	reopenAt := closedAt.Add(time.Second)
	assert.True(t, tr.RecordActivity(s, reopenAt))
	assert.Equal(t, domain.PhaseWaiting, s.Phase())
	assert.True(t, s.ClosedAt.IsZero())
	assert.False(t, tr.RecordActivity(s, reopenAt.Add(time.Second)))
}

func TestTracker_ShouldForget(t *testing.T) {
	tr := NewTracker(DefaultTiming())

	open := domain.NewSessionState(epoch)
	assert.False(t, tr.ShouldForget(open, false, epoch.Add(5*time.Minute)))
	assert.True(t, tr.ShouldForget(open, false, epoch.Add(5*time.Minute+time.Second)))

	active := domain.NewSessionState(epoch)
	active.LastUserActivity = epoch.Add(4 * time.Minute)
	assert.False(t, tr.ShouldForget(active, false, epoch.Add(6*time.Minute)), "user activity keeps a session alive")

	closed := domain.NewSessionState(epoch)
	tr.Close(closed, epoch)
	assert.False(t, tr.ShouldForget(closed, true, epoch.Add(time.Hour)), "undelivered sentinel keeps the session")
	assert.False(t, tr.ShouldForget(closed, false, epoch.Add(30*time.Second)))
	assert.True(t, tr.ShouldForget(closed, false, epoch.Add(31*time.Second)))
}

func TestTimingDefaults(t *testing.T) {
	got := NewTracker(Timing{MaxWait: 10 * time.Second}).timing
	assert.Equal(t, 10*time.Second, got.MaxWait)
	assert.Equal(t, 5*time.Minute, got.Retention)
	assert.Equal(t, 2*time.Second, got.PollInterval)
	assert.Equal(t, 30*time.Second, got.CloseGrace)
}
