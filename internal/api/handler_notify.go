package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListRecipients handles GET /api/recipients.
func (h *Handler) ListRecipients(c *gin.Context) {
	recipients, err := h.store.Recipients().List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recipients)
}

type pushAllRequest struct {
	Message string `json:"message"`
}

// PushAll handles POST /api/notify/push-all.
func (h *Handler) PushAll(c *gin.Context) {
	if h.notifier == nil {
		h.fail(c, errors.New("notifications are not configured"))
		return
	}
	var req pushAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidInput(err.Error()))
		return
	}
	if req.Message == "" {
		h.fail(c, invalidInput("message is required"))
		return
	}

	res, err := h.notifier.PushAll(c.Request.Context(), req.Message)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sent": res.Sent, "failed": res.Failed, "removed": res.Removed})
}
