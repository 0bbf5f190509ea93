// Package domain contains core domain types for the chat relay.
package domain

import (
	"time"
)

// ReplyKind distinguishes real agent replies from internally synthesized ones.
type ReplyKind string

const (
	// KindAgent is a reply delivered by the external automation webhook.
	KindAgent ReplyKind = "agent"
	// KindSystem is a control message created by the relay itself.
	KindSystem ReplyKind = "system"
)

// ReplyItem is one queued message destined for a browser session.
type ReplyItem struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Kind      ReplyKind `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Consumed  bool      `json:"consumed"`
}

// ExpiredAt reports whether the item is older than the retention window.
func (r *ReplyItem) ExpiredAt(now time.Time, retention time.Duration) bool {
	return now.Sub(r.CreatedAt) > retention
}
