package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"laundromat-backend/internal/model"
	"laundromat-backend/internal/notification"
)

const maxWebhookBody = 1 << 20

// LineWebhook handles POST /api/webhook. When a channel secret is configured
// the X-Line-Signature header must match the raw body; otherwise the request
// is rejected before anything is registered.
func (h *Handler) LineWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.fail(c, invalidInput("unreadable body"))
		return
	}

	if h.lineSecret != "" && !notification.ValidLineSignature(h.lineSecret, body, c.GetHeader("X-Line-Signature")) {
		h.log.Warn("webhook signature mismatch", zap.String("client_ip", c.ClientIP()))
		h.fail(c, model.ErrInvalidSignature)
		return
	}

	var payload notification.LineWebhook
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			h.fail(c, invalidInput("malformed webhook body"))
			return
		}
	}

	ctx := c.Request.Context()
	for _, ev := range payload.Events {
		if r, ok := ev.Source.Recipient(); ok {
			created, err := h.store.Recipients().Register(ctx, r)
			switch {
			case err != nil:
				h.log.Error("recipient insert error", zap.String("target_id", r.TargetID), zap.Error(err))
			case created:
				h.log.Info("registered recipient", zap.String("target_id", r.TargetID))
			}
		}

		if ev.Type == "message" && ev.ReplyToken != "" && h.line != nil && h.replyText != "" {
			if err := h.line.Reply(ctx, ev.ReplyToken, h.replyText); err != nil {
				h.log.Warn("reply error", zap.Error(err))
			}
		}
	}

	c.Status(http.StatusOK)
}
