package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundromat-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
	Label    string `json:"label"`
}

// PutSubscription registers a browser push subscription as a recipient.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidInput("invalid request"))
		return
	}

	label := req.Label
	if label == "" {
		label = "webpush"
	}
	created, err := h.store.Recipients().Register(c.Request.Context(), model.Recipient{
		TargetID: req.Endpoint,
		Label:    label,
		Channel:  model.ChannelWebPush,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"ok": true})
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidInput("invalid request"))
		return
	}

	if err := h.store.Recipients().Delete(c.Request.Context(), req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
