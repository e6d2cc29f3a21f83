package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier delivers user-facing notifications through the platform's
// notification service. Deliveries are best effort; callers log failures and
// move on.
type Notifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewNotifier creates a notifier client. An empty baseURL disables delivery.
func NewNotifier(baseURL string) *Notifier {
	return &Notifier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a notification endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n.baseURL != ""
}

// Notification is a single message to a user.
type Notification struct {
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Send posts a notification. Returns nil without sending when disabled.
func (n *Notifier) Send(ctx context.Context, notif Notification) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/v1/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected (status %d)", resp.StatusCode)
	}
	return nil
}
