package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/chat-relay/internal/relay"
	"github.com/go-chi/chi/v5"
)

// RelayHandler exposes the relay mailbox to the chat widget (GET, PUT) and to
// the external automation webhook (POST).
type RelayHandler struct {
	svc   *relay.Service
	trace *DebugTrace
	now   func() time.Time
}

// NewRelayHandler creates a relay handler. A nil trace gets a default one.
func NewRelayHandler(svc *relay.Service, trace *DebugTrace) *RelayHandler {
	if trace == nil {
		trace = NewDebugTrace(defaultTraceSize)
	}
	return &RelayHandler{svc: svc, trace: trace, now: time.Now}
}

// RegisterRoutes registers the relay under /relay and the legacy widget path.
func (h *RelayHandler) RegisterRoutes(r chi.Router) {
	for _, path := range []string{"/relay", "/api/chat-response"} {
		r.Get(path, h.Poll)
		r.Post(path, h.Deliver)
		r.Put(path, h.Touch)
	}
}

// Poll returns queued replies for the session, or its waiting status.
func (h *RelayHandler) Poll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := strings.TrimSpace(q.Get("session_id"))
	wantDebug := q.Get("debug") == "1"

	res, err := h.svc.Poll(sessionID)
	if err != nil {
		body := map[string]interface{}{"error": errorMessage(err)}
		if wantDebug {
			body["debug"] = h.trace.Recent(debugTraceWindow)
		}
		JSON(w, statusFor(err), body)
		return
	}

	body := make(map[string]interface{})
	switch {
	case res.HasMessages():
		// "message" carries the first reply for single-message clients.
		body["message"] = res.Messages[0]
		body["messages"] = res.Messages
		body["count"] = len(res.Messages)
		if res.Closed {
			body["closed"] = true
		}
	case res.Closed:
		body["closed"] = true
	case res.Pending:
		body["pending"] = true
		body["waitTimeRemaining"] = res.WaitRemaining.Milliseconds()
		body["timeSinceFirstPoll"] = res.SinceWaitStart.Milliseconds()
	}
	if wantDebug {
		body["debug"] = h.trace.Recent(debugTraceWindow)
	}
	JSON(w, http.StatusOK, body)
}

// Deliver accepts a reply from the external webhook.
func (h *RelayHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	entry := newTraceEntry(r, h.now())
	fields, err := parseRelayBody(w, r, &entry)
	entry.Extracted = map[string]string{"session_id": fields.SessionID, "message": fields.Message}
	if err != nil {
		entry.Error = err.Error()
		h.trace.Push(entry)
		slog.Warn("Relay rejected malformed delivery", "error", err, "content_type", entry.ContentType)
		Error(w, http.StatusBadRequest, "Invalid request")
		return
	}
	h.trace.Push(entry)

	if fields.SessionID == "" {
		Error(w, http.StatusBadRequest, relay.ErrMissingSessionID.Message)
		return
	}
	if !fields.HasMessage {
		slog.Warn("Relay delivery without text message", "session_id", fields.SessionID)
		Error(w, http.StatusBadRequest, relay.ErrInvalidMessage.Message)
		return
	}

	res, err := h.svc.Deliver(fields.SessionID, fields.Message)
	if err != nil {
		Error(w, statusFor(err), errorMessage(err))
		return
	}

	body := map[string]interface{}{"ok": true}
	if res.Dropped {
		body["dropped"] = true
	}
	JSON(w, http.StatusOK, body)
}

// Touch records that the user just sent a message to the webhook.
func (h *RelayHandler) Touch(w http.ResponseWriter, r *http.Request) {
	entry := newTraceEntry(r, h.now())
	fields, err := parseRelayBody(w, r, &entry)
	if err != nil {
		// An unreadable body carries no session id.
		slog.Debug("Relay activity body unreadable", "error", err)
		fields = relayFields{}
	}

	if err := h.svc.Touch(fields.SessionID); err != nil {
		Error(w, statusFor(err), errorMessage(err))
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func statusFor(err error) int {
	if relay.IsValidation(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) string {
	var ve *relay.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return "Internal error"
}
