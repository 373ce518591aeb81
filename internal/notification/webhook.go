package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"laundromat-backend/internal/model"
)

// WebhookBroadcaster posts every notification as JSON to a fixed URL.
type WebhookBroadcaster struct {
	url  string
	http *http.Client
}

// NewWebhookBroadcaster creates a broadcaster for url.
func NewWebhookBroadcaster(url string, timeout time.Duration) *WebhookBroadcaster {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookBroadcaster{url: url, http: &http.Client{Timeout: timeout}}
}

func (w *WebhookBroadcaster) Name() string { return "webhook" }

func (w *WebhookBroadcaster) Broadcast(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %v: %w", err, model.ErrDeliveryFailure)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: status %d: %w", resp.StatusCode, model.ErrDeliveryFailure)
	}
	return nil
}
