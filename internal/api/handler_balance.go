package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"laundromat-backend/internal/model"
)

type topUpRequest struct {
	Amount int64 `json:"amount"`
}

// TopUp handles POST /api/topup.
func (h *Handler) TopUp(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%v: %w", err, model.ErrInvalidAmount))
		return
	}
	balance, err := h.ctrl.TopUp(c.Request.Context(), req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "balance": balance})
}

// GetBalance handles GET /api/balance.
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.ctrl.Balance(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// GetHistory handles GET /api/history?limit=N, newest first.
func (h *Handler) GetHistory(c *gin.Context) {
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(c, invalidInput("limit must be a positive integer"))
			return
		}
		limit = min(n, h.historyLimit)
	}

	entries, err := h.store.History().List(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
