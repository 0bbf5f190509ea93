package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/chat-relay/internal/domain"
	"github.com/ashureev/chat-relay/internal/metrics"
	"github.com/ashureev/chat-relay/internal/store"
)

// DefaultCloseSentinel is the reserved message that tells the widget to reset
// the conversation.
const DefaultCloseSentinel = "/delete"

const defaultNotifyTimeout = 10 * time.Second

// CloseNotifier is told when a session auto-closes so the external agent can
// drop its conversation memory.
type CloseNotifier interface {
	NotifyClosed(ctx context.Context, sessionID string) error
}

// PollResult is the outcome of a GET poll.
type PollResult struct {
	Messages       []string
	Closed         bool
	Pending        bool
	WaitRemaining  time.Duration
	SinceWaitStart time.Duration
}

// HasMessages returns true if the poll drained at least one item.
func (r PollResult) HasMessages() bool {
	return len(r.Messages) > 0
}

// DeliverResult is the outcome of a webhook delivery.
type DeliverResult struct {
	Dropped bool // session was closed, message discarded
	Closed  bool // message was the close sentinel and closed the session
}

// Stats is a point-in-time view of the mailbox.
type Stats struct {
	Sessions int `json:"sessions"`
	Waiting  int `json:"waiting"`
	Closed   int `json:"closed"`
}

// Service serialises the relay operations over a mailbox. It is safe for
// concurrent use.
type Service struct {
	mu            sync.Mutex
	box           store.Mailbox
	tracker       *Tracker
	sentinel      string
	now           func() time.Time
	notifier      CloseNotifier
	notifyTimeout time.Duration
	notifyWG      sync.WaitGroup
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSentinel overrides the close sentinel text.
func WithSentinel(sentinel string) Option {
	return func(s *Service) {
		if sentinel != "" {
			s.sentinel = sentinel
		}
	}
}

// WithNotifier registers a notifier called after inactivity closes.
func WithNotifier(n CloseNotifier, timeout time.Duration) Option {
	return func(s *Service) {
		s.notifier = n
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a relay service over box.
func NewService(box store.Mailbox, timing Timing, opts ...Option) *Service {
	s := &Service{
		box:           box,
		tracker:       NewTracker(timing),
		sentinel:      DefaultCloseSentinel,
		now:           time.Now,
		notifyTimeout: defaultNotifyTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Poll consumes every pending reply for the session. It never blocks: with
// nothing queued it reports whether the client should keep waiting.
func (s *Service) Poll(sessionID string) (PollResult, error) {
	if sessionID == "" {
		return PollResult{}, ErrMissingSessionID
	}

	s.mu.Lock()
	now := s.now()
	closed := s.purgeLocked(now)

	state, _ := s.box.EnsureSession(sessionID, now)
	s.tracker.ObservePoll(state, now)

	var res PollResult
	if items := s.box.DrainUnconsumed(sessionID); len(items) > 0 {
		s.tracker.MarkDelivered(state, now)
		res.Messages = make([]string, 0, len(items))
		for _, item := range items {
			res.Messages = append(res.Messages, item.Message)
			if item.Kind == domain.KindSystem && item.Message == s.sentinel {
				res.Closed = true
			}
		}
		res.Closed = res.Closed || state.Closed
	} else if state.Closed {
		res.Closed = true
	} else {
		res.Pending, res.WaitRemaining, res.SinceWaitStart = s.tracker.ResolveWait(state, now)
	}
	phase := state.Phase()
	s.mu.Unlock()

	s.notifyClosed(closed)

	switch {
	case res.HasMessages():
		metrics.Polls.WithLabelValues("messages").Inc()
		metrics.RepliesDelivered.Add(float64(len(res.Messages)))
		s.logger.Info("Relay delivered replies",
			"session_id", sessionID,
			"count", len(res.Messages),
			"closed", res.Closed)
	case res.Closed:
		metrics.Polls.WithLabelValues("closed").Inc()
	case res.Pending:
		metrics.Polls.WithLabelValues("pending").Inc()
	default:
		metrics.Polls.WithLabelValues("empty").Inc()
	}
	s.logger.Debug("Relay poll",
		"session_id", sessionID,
		"phase", phase.String(),
		"pending", res.Pending,
		"since_wait_start", res.SinceWaitStart)

	return res, nil
}

// Deliver enqueues a reply from the external webhook. Replies to a closed
// session are accepted but dropped. A reply equal to the close sentinel
// closes the session instead of being queued as chat text.
func (s *Service) Deliver(sessionID, message string) (DeliverResult, error) {
	if sessionID == "" {
		return DeliverResult{}, ErrMissingSessionID
	}

	s.mu.Lock()
	now := s.now()
	closed := s.purgeLocked(now)

	state, tracked := s.box.Session(sessionID)
	var res DeliverResult
	switch {
	case tracked && state.Closed:
		res.Dropped = true
	case message == s.sentinel:
		if !tracked {
			state, _ = s.box.EnsureSession(sessionID, now)
		}
		s.closeLocked(sessionID, state, now)
		res.Closed = true
	default:
		s.box.Enqueue(sessionID, message, domain.KindAgent, now)
		metrics.RepliesEnqueued.WithLabelValues(string(domain.KindAgent)).Inc()
	}
	queued := s.box.QueueLen(sessionID)
	s.mu.Unlock()

	s.notifyClosed(closed)

	switch {
	case res.Dropped:
		metrics.RepliesDropped.Inc()
		s.logger.Warn("Relay dropped reply for closed session", "session_id", sessionID)
	case res.Closed:
		s.logger.Info("Relay session closed by webhook", "session_id", sessionID)
	default:
		s.logger.Info("Relay reply enqueued", "session_id", sessionID, "queued", queued)
	}
	return res, nil
}

// Touch records that the user just sent a message. The session waits for a
// reply, and a closed session is reopened with its old queue discarded.
func (s *Service) Touch(sessionID string) error {
	if sessionID == "" {
		return ErrMissingSessionID
	}

	s.mu.Lock()
	now := s.now()
	closed := s.purgeLocked(now)

	state, _ := s.box.EnsureSession(sessionID, now)
	if state.Closed {
		s.box.ClearQueue(sessionID)
	}
	reopened := s.tracker.RecordActivity(state, now)
	s.mu.Unlock()

	s.notifyClosed(closed)

	if reopened {
		metrics.SessionsReopened.Inc()
		s.logger.Info("Relay session reopened by user activity", "session_id", sessionID)
	}
	s.logger.Debug("Relay session waiting for reply", "session_id", sessionID)
	return nil
}

// Purge runs the expiry pass outside of a request.
func (s *Service) Purge() {
	s.mu.Lock()
	closed := s.purgeLocked(s.now())
	s.mu.Unlock()

	s.notifyClosed(closed)
}

// Stats returns session counts.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	s.box.RangeSessions(func(_ string, state *domain.SessionState) {
		st.Sessions++
		switch state.Phase() {
		case domain.PhaseWaiting:
			st.Waiting++
		case domain.PhaseClosed:
			st.Closed++
		}
	})
	return st
}

// Wait blocks until in-flight close notifications finish.
func (s *Service) Wait() {
	s.notifyWG.Wait()
}

// purgeLocked expires old items, auto-closes inactive sessions and forgets
// finished ones. It returns the ids closed during this pass.
func (s *Service) purgeLocked(now time.Time) []string {
	if n := s.box.PurgeExpired(now); n > 0 {
		metrics.RepliesExpired.Add(float64(n))
	}

	var closed []string
	s.box.RangeSessions(func(id string, state *domain.SessionState) {
		if s.tracker.ShouldClose(state, now) {
			s.closeLocked(id, state, now)
			closed = append(closed, id)
			metrics.SessionsClosed.Inc()
			s.logger.Info("Relay session closed for inactivity",
				"session_id", id,
				"last_user_activity", state.LastUserActivity)
		}
		if s.tracker.ShouldForget(state, s.box.HasUnconsumed(id), now) {
			s.box.DeleteSession(id)
			s.logger.Debug("Relay session purged", "session_id", id, "was_closed", state.Closed)
		}
	})
	metrics.SessionsTracked.Set(float64(s.box.SessionCount()))
	return closed
}

// closeLocked closes the session and queues one close sentinel.
func (s *Service) closeLocked(id string, state *domain.SessionState, now time.Time) {
	if !s.box.HasUnconsumedKind(id, domain.KindSystem, s.sentinel) {
		s.box.Enqueue(id, s.sentinel, domain.KindSystem, now)
		metrics.RepliesEnqueued.WithLabelValues(string(domain.KindSystem)).Inc()
	}
	s.tracker.Close(state, now)
}

func (s *Service) notifyClosed(ids []string) {
	if s.notifier == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		s.notifyWG.Add(1)
		go func(sessionID string) {
			defer s.notifyWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
			defer cancel()

			if err := s.notifier.NotifyClosed(ctx, sessionID); err != nil {
				metrics.CloseNotifications.WithLabelValues("error").Inc()
				s.logger.Warn("Close notification failed", "session_id", sessionID, "error", err)
				return
			}
			metrics.CloseNotifications.WithLabelValues("ok").Inc()
		}(id)
	}
}
