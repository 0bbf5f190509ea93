package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/chat-relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeNotifier) NotifyClosed(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sessionID)
	return f.err
}

func (f *fakeNotifier) sessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *store.MemoryMailbox, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: epoch}
	box := store.NewMemoryMailbox(DefaultTiming().Retention)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(box, DefaultTiming(), opts...), box, clock
}

func TestService_ReplyAfterActivity(t *testing.T) {
	svc, _, clock := newTestService(t)

	require.NoError(t, svc.Touch("s1"))
	clock.Advance(500 * time.Millisecond)
	_, err := svc.Deliver("s1", "hi")
	require.NoError(t, err)
	clock.Advance(time.Second)

	res, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, res.Messages)
	assert.False(t, res.Closed)
	assert.False(t, res.Pending)
}

func TestService_UnknownSessionIsIdle(t *testing.T) {
	svc, _, _ := newTestService(t)

	res, err := svc.Poll("s2")
	require.NoError(t, err)
	assert.False(t, res.HasMessages())
	assert.False(t, res.Pending)
	assert.False(t, res.Closed)
}

func TestService_PendingAfterActivity(t *testing.T) {
	svc, _, _ := newTestService(t)

	require.NoError(t, svc.Touch("s3"))
	res, err := svc.Poll("s3")
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.LessOrEqual(t, res.WaitRemaining, 60*time.Second)
	assert.Positive(t, res.WaitRemaining)
}

func TestService_BatchInOrder(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Deliver("s4", "a")
	require.NoError(t, err)
	_, err = svc.Deliver("s4", "b")
	require.NoError(t, err)

	res, err := svc.Poll("s4")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Messages)

	again, err := svc.Poll("s4")
	require.NoError(t, err)
	assert.False(t, again.HasMessages(), "items are delivered at most once")
}

func TestService_LateReplyDroppedAfterInactivity(t *testing.T) {
	svc, box, clock := newTestService(t)

	require.NoError(t, svc.Touch("s5"))
	clock.Advance(5*time.Minute + time.Second)

	res, err := svc.Deliver("s5", "late")
	require.NoError(t, err)
	assert.True(t, res.Dropped)
	assert.Equal(t, 1, box.QueueLen("s5"), "only the close sentinel is queued")

	poll, err := svc.Poll("s5")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultCloseSentinel}, poll.Messages)
	assert.True(t, poll.Closed)
}

func TestService_DeliverToClosedNeverGrowsQueue(t *testing.T) {
	svc, box, clock := newTestService(t)

	require.NoError(t, svc.Touch("s1"))
	clock.Advance(6 * time.Minute)
	svc.Purge()
	before := box.QueueLen("s1")

	for i := 0; i < 3; i++ {
		res, err := svc.Deliver("s1", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		assert.True(t, res.Dropped)
	}
	assert.Equal(t, before, box.QueueLen("s1"))
}

func TestService_InactivityCloseQueuesExactlyOneSentinel(t *testing.T) {
	svc, _, clock := newTestService(t)

	require.NoError(t, svc.Touch("s1"))
	clock.Advance(6 * time.Minute)
	svc.Purge()
	clock.Advance(time.Second)
	svc.Purge()

	// A webhook echoing the sentinel must not add a second one.
	res, err := svc.Deliver("s1", DefaultCloseSentinel)
	require.NoError(t, err)
	assert.True(t, res.Dropped)

	poll, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultCloseSentinel}, poll.Messages)
	assert.True(t, poll.Closed)

	after, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.False(t, after.HasMessages())
	assert.True(t, after.Closed, "closed sessions keep signalling closure until reopened")
}

func TestService_TouchReopensClosedSession(t *testing.T) {
	svc, box, clock := newTestService(t)

	require.NoError(t, svc.Touch("s1"))
	clock.Advance(6 * time.Minute)
	svc.Purge()
	require.Equal(t, 1, svc.Stats().Closed)

	require.NoError(t, svc.Touch("s1"))
	assert.Zero(t, box.QueueLen("s1"), "reopen discards the old queue, sentinel included")
	assert.Zero(t, svc.Stats().Closed)

	res, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.False(t, res.HasMessages())
	assert.False(t, res.Closed)
	assert.True(t, res.Pending)

	_, err = svc.Deliver("s1", "fresh")
	require.NoError(t, err)
	res, err = svc.Poll("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, res.Messages)
}

func TestService_RetentionExpiresItems(t *testing.T) {
	svc, _, clock := newTestService(t)

	_, err := svc.Deliver("s1", "stale")
	require.NoError(t, err)
	clock.Advance(5*time.Minute + time.Second)

	res, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.False(t, res.HasMessages())
}

func TestService_WaitWindowExpires(t *testing.T) {
	svc, _, clock := newTestService(t)

	require.NoError(t, svc.Touch("s1"))
	for i := 0; i < 29; i++ {
		clock.Advance(2 * time.Second)
		res, err := svc.Poll("s1")
		require.NoError(t, err)
		require.True(t, res.Pending, "poll %d should still be pending", i)
	}

	clock.Advance(2 * time.Second)
	res, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.False(t, res.Pending)

	clock.Advance(2 * time.Second)
	res, err = svc.Poll("s1")
	require.NoError(t, err)
	assert.False(t, res.Pending, "continued polling does not restart an abandoned wait")
}

func TestService_PollCadenceEntersWaiting(t *testing.T) {
	svc, _, clock := newTestService(t)

	first, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.False(t, first.Pending)

	clock.Advance(2 * time.Second)
	second, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.True(t, second.Pending)
	assert.Equal(t, 58*time.Second, second.WaitRemaining)
	assert.Equal(t, 2*time.Second, second.SinceWaitStart)
}

func TestService_PollAfterPauseStartsNewWait(t *testing.T) {
	svc, _, clock := newTestService(t)

	_, err := svc.Poll("s1")
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	res, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, 60*time.Second, res.WaitRemaining)
	assert.Zero(t, res.SinceWaitStart)
}

func TestService_WebhookSentinelClosesSession(t *testing.T) {
	svc, _, _ := newTestService(t)

	require.NoError(t, svc.Touch("s1"))
	res, err := svc.Deliver("s1", DefaultCloseSentinel)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.False(t, res.Dropped)

	poll, err := svc.Poll("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultCloseSentinel}, poll.Messages)
	assert.True(t, poll.Closed)
}

func TestService_ClosedSessionForgottenAfterGrace(t *testing.T) {
	svc, _, clock := newTestService(t)

	require.NoError(t, svc.Touch("s1"))
	clock.Advance(6 * time.Minute)
	svc.Purge()

	clock.Advance(time.Minute)
	svc.Purge()
	assert.Equal(t, 1, svc.Stats().Sessions, "undelivered sentinel keeps the session")

	_, err := svc.Poll("s1")
	require.NoError(t, err)
	clock.Advance(31 * time.Second)
	svc.Purge()
	assert.Zero(t, svc.Stats().Sessions)
}

func TestService_AbandonedSessionForgotten(t *testing.T) {
	svc, _, clock := newTestService(t)

	_, err := svc.Poll("s1")
	require.NoError(t, err)
	clock.Advance(5*time.Minute + time.Second)
	svc.Purge()

	assert.Zero(t, svc.Stats().Sessions)
}

func TestService_MissingSessionID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Poll("")
	assert.ErrorIs(t, err, ErrMissingSessionID)
	_, err = svc.Deliver("", "x")
	assert.ErrorIs(t, err, ErrMissingSessionID)
	err = svc.Touch("")
	assert.ErrorIs(t, err, ErrMissingSessionID)
	assert.True(t, IsValidation(err))
}

func TestService_NotifiesOnInactivityClose(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _, clock := newTestService(t, WithNotifier(notifier, time.Second))

	require.NoError(t, svc.Touch("s1"))
	require.NoError(t, svc.Touch("s2"))
	clock.Advance(6 * time.Minute)
	svc.Purge()
	svc.Purge()
	svc.Wait()

	assert.ElementsMatch(t, []string{"s1", "s2"}, notifier.sessions())
}

func TestService_ConcurrentDeliveriesKeepPerSenderOrder(t *testing.T) {
	svc, _, _ := newTestService(t)

	const senders, perSender = 8, 25
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(sender int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := svc.Deliver("shared", fmt.Sprintf("%d:%03d", sender, i))
				assert.NoError(t, err)
			}
		}(s)
	}
	wg.Wait()

	res, err := svc.Poll("shared")
	require.NoError(t, err)
	require.Len(t, res.Messages, senders*perSender)

	last := make(map[string]string)
	for _, msg := range res.Messages {
		var sender, seq string
		_, err := fmt.Sscanf(msg, "%1s:%3s", &sender, &seq)
		require.NoError(t, err)
		assert.Greater(t, seq, last[sender], "messages from one sender stay in order")
		last[sender] = seq
	}
}

func TestService_StatsCountsPhases(t *testing.T) {
	svc, _, clock := newTestService(t)

	require.NoError(t, svc.Touch("waiting"))
	_, err := svc.Poll("idle")
	require.NoError(t, err)

	st := svc.Stats()
	assert.Equal(t, 2, st.Sessions)
	assert.Equal(t, 1, st.Waiting)
	assert.Zero(t, st.Closed)

	clock.Advance(6 * time.Minute)
	svc.Purge()
	st = svc.Stats()
	assert.Equal(t, 1, st.Closed)
	assert.Equal(t, 1, st.Sessions, "idle session without polls was forgotten")
}
