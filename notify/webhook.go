package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrWebhookStatus is returned when the webhook answers with a non-2xx
// status.
var ErrWebhookStatus = errors.New("webhook returned non-success status")

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Type      string    `json:"type"`
	BoardID   string    `json:"boardId"`
	SessionID string    `json:"sessionId"`
	ChangedAt time.Time `json:"changedAt"`
}

// Webhook posts board-changed signals as JSON.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook posting to url. A nil client gets one with
// timeout.
func NewWebhook(url string, timeout time.Duration, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Webhook{url: url, client: client}
}

func (w *Webhook) BoardChanged(ctx context.Context, boardID, sessionID string) error {
	body, err := json.Marshal(Payload{
		Type:      "board.changed",
		BoardID:   boardID,
		SessionID: sessionID,
		ChangedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
	}
	return nil
}
