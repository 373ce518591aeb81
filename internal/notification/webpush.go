package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"laundromat-backend/internal/model"
)

// PushClient defines the interface for sending a web push notification.
type PushClient interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// webpushClient is the real PushClient using the webpush library.
type webpushClient struct{}

func (webpushClient) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WebPushSender delivers notifications to browser push subscriptions.
type WebPushSender struct {
	client  PushClient
	options *webpush.Options
}

// NewWebPushSender creates a sender signing requests with the VAPID options.
func NewWebPushSender(options *webpush.Options) *WebPushSender {
	return &WebPushSender{client: webpushClient{}, options: options}
}

func (s *WebPushSender) Channel() string { return model.ChannelWebPush }

// Send pushes msg as JSON. A 404 or 410 from the push service means the
// subscription expired.
func (s *WebPushSender) Send(_ context.Context, r model.Recipient, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// Manually construct the webpush.Subscription object
	sub := &webpush.Subscription{
		Endpoint: r.TargetID,
		Keys: webpush.Keys{
			P256dh: r.P256DH,
			Auth:   r.Auth,
		},
	}

	resp, err := s.client.Send(payload, sub, s.options)
	if err != nil {
		return fmt.Errorf("web push to %s: %v: %w", r.TargetID, err, model.ErrDeliveryFailure)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("subscription %s: %w", r.TargetID, ErrRecipientGone)
	case resp.StatusCode >= 400:
		return fmt.Errorf("web push to %s: status %d: %w", r.TargetID, resp.StatusCode, model.ErrDeliveryFailure)
	}
	return nil
}
