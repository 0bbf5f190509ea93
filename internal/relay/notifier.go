package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WebhookNotifier posts the close sentinel to the external automation webhook,
// the same payload the widget sends when the user resets the chat.
type WebhookNotifier struct {
	url      string
	sentinel string
	client   *http.Client
}

type closePayload struct {
	SessionID string `json:"session_id"`
	MsgID     string `json:"msg_id"`
	Turn      int    `json:"turn"`
	Message   string `json:"message"`
	Reason    string `json:"reason"`
}

// NewWebhookNotifier creates a notifier for url. A nil client gets one with
// the given timeout.
func NewWebhookNotifier(url, sentinel string, client *http.Client, timeout time.Duration) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if sentinel == "" {
		sentinel = DefaultCloseSentinel
	}
	return &WebhookNotifier{url: url, sentinel: sentinel, client: client}
}

// NotifyClosed posts the close sentinel for sessionID.
func (n *WebhookNotifier) NotifyClosed(ctx context.Context, sessionID string) error {
	if n.url == "" {
		return ErrNotifierDisabled
	}

	body, err := json.Marshal(closePayload{
		SessionID: sessionID,
		MsgID:     uuid.NewString(),
		Turn:      1,
		Message:   n.sentinel,
		Reason:    "inactivity",
	})
	if err != nil {
		return fmt.Errorf("encode close payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build close request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post close notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
