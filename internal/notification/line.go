package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"laundromat-backend/internal/model"
)

// LineClient talks to the LINE Messaging API.
type LineClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewLineClient creates a client for the API at baseURL authenticated with
// the channel access token.
func NewLineClient(baseURL, token string, timeout time.Duration) *LineClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LineClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type lineTextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushRequest struct {
	To       string            `json:"to"`
	Messages []lineTextMessage `json:"messages"`
}

type lineReplyRequest struct {
	ReplyToken string            `json:"replyToken"`
	Messages   []lineTextMessage `json:"messages"`
}

// Push sends a text message to a user, group or room.
func (c *LineClient) Push(ctx context.Context, to, text string) error {
	return c.post(ctx, "/v2/bot/message/push", linePushRequest{
		To:       to,
		Messages: []lineTextMessage{{Type: "text", Text: text}},
	})
}

// Reply answers an inbound event using its reply token.
func (c *LineClient) Reply(ctx context.Context, replyToken, text string) error {
	return c.post(ctx, "/v2/bot/message/reply", lineReplyRequest{
		ReplyToken: replyToken,
		Messages:   []lineTextMessage{{Type: "text", Text: text}},
	})
}

func (c *LineClient) post(ctx context.Context, path string, body any) error {
	if c.token == "" {
		return fmt.Errorf("LINE channel access token is not configured: %w", model.ErrDeliveryFailure)
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("LINE %s: %v: %w", path, err, model.ErrDeliveryFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("LINE %s: status %d: %s: %w", path, resp.StatusCode, bytes.TrimSpace(detail), model.ErrDeliveryFailure)
	}
	return nil
}

// LineSender delivers notifications as LINE push messages.
type LineSender struct {
	client *LineClient
}

// NewLineSender wraps client as a Sender.
func NewLineSender(client *LineClient) *LineSender {
	return &LineSender{client: client}
}

func (s *LineSender) Channel() string { return model.ChannelLine }

func (s *LineSender) Send(ctx context.Context, r model.Recipient, msg Message) error {
	return s.client.Push(ctx, r.TargetID, msg.Text)
}

// ValidLineSignature reports whether signature is the base64 HMAC-SHA256 of
// body under the channel secret.
func ValidLineSignature(secret string, body []byte, signature string) bool {
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// LineWebhook is the body LINE posts to the webhook endpoint.
type LineWebhook struct {
	Destination string      `json:"destination"`
	Events      []LineEvent `json:"events"`
}

// LineEvent is one inbound webhook event.
type LineEvent struct {
	Type       string     `json:"type"`
	ReplyToken string     `json:"replyToken"`
	Source     LineSource `json:"source"`
}

// LineSource identifies who caused an event.
type LineSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

// TargetID returns the push destination for the source: the group or room
// when the event came from one, the user otherwise.
func (s LineSource) TargetID() string {
	switch {
	case s.GroupID != "":
		return s.GroupID
	case s.RoomID != "":
		return s.RoomID
	default:
		return s.UserID
	}
}

// Recipient converts the source into a LINE recipient, ok is false when the
// event carries no usable id.
func (s LineSource) Recipient() (model.Recipient, bool) {
	id := s.TargetID()
	if id == "" {
		return model.Recipient{}, false
	}
	kind := s.Type
	if kind == "" {
		kind = "unknown"
	}
	return model.Recipient{TargetID: id, Label: kind + ":" + id, Channel: model.ChannelLine}, true
}
