// Package relay implements the session response relay: a polled mailbox that
// bridges asynchronous webhook replies to browser chat sessions.
package relay

import "errors"

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	// ErrMissingSessionID is returned when a request carries no session id.
	ErrMissingSessionID = &ValidationError{Field: "session_id", Message: "Missing session_id"}

	// ErrInvalidMessage is returned when a delivery carries no text message.
	ErrInvalidMessage = &ValidationError{Field: "message", Message: "Invalid payload. Expected { session_id, message } with a text message."}

	// ErrNotifierDisabled is returned by a notifier with no target configured.
	ErrNotifierDisabled = errors.New("close notifier disabled")
)

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
