package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundromat-backend/internal/model"
)

// mockPushClient is a mock implementation of PushClient for testing.
type mockPushClient struct {
	status  int
	err     error
	payload []byte
	sub     *webpush.Subscription
}

func (m *mockPushClient) Send(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	m.payload = payload
	m.sub = sub
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{StatusCode: m.status, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func TestWebPushSender_Send(t *testing.T) {
	r := model.Recipient{
		TargetID: "https://push.example/abc",
		Channel:  model.ChannelWebPush,
		P256DH:   "p256dh-key",
		Auth:     "auth-key",
	}
	msg := Message{Title: "Finished", Text: "Dryer D-11: finished", MachineID: "D-11"}

	testCases := []struct {
		name    string
		status  int
		err     error
		wantErr error
	}{
		{name: "created", status: http.StatusCreated},
		{name: "gone", status: http.StatusGone, wantErr: ErrRecipientGone},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrRecipientGone},
		{name: "server error", status: http.StatusInternalServerError, wantErr: model.ErrDeliveryFailure},
		{name: "transport error", err: errors.New("dial tcp: refused"), wantErr: model.ErrDeliveryFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := &mockPushClient{status: tc.status, err: tc.err}
			s := &WebPushSender{client: client, options: &webpush.Options{TTL: 60}}

			err := s.Send(context.Background(), r, msg)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}

			require.NotNil(t, client.sub)
			assert.Equal(t, r.TargetID, client.sub.Endpoint)
			assert.Equal(t, "p256dh-key", client.sub.Keys.P256dh)
			assert.Equal(t, "auth-key", client.sub.Keys.Auth)

			var got map[string]any
			require.NoError(t, json.Unmarshal(client.payload, &got))
			assert.Equal(t, "Finished", got["title"])
			assert.Equal(t, "Dryer D-11: finished", got["message"])
		})
	}
}
