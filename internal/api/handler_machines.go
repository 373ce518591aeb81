package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundromat-backend/internal/parse"
)

// ListMachines handles GET /api/machines.
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.store.Machines().List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	m, err := h.store.Machines().Get(c.Request.Context(), parse.NormalizeID(c.Param("id")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type startRequest struct {
	ID              string `json:"id"`
	DurationSeconds int    `json:"durationSeconds"`
	// DurationSec is accepted for older dashboards.
	DurationSec int   `json:"durationSec"`
	Price       int64 `json:"price"`
}

// Start handles POST /api/start.
func (h *Handler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidInput(err.Error()))
		return
	}
	duration := req.DurationSeconds
	if duration == 0 {
		duration = req.DurationSec
	}

	balance, err := h.ctrl.Start(c.Request.Context(), req.ID, duration, req.Price)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "balance": balance})
}

type machineRequest struct {
	ID string `json:"id"`
}

// Stop handles POST /api/stop.
func (h *Handler) Stop(c *gin.Context) {
	var req machineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidInput(err.Error()))
		return
	}
	if err := h.ctrl.Stop(c.Request.Context(), req.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SetAvailable handles POST /api/setAvailable.
func (h *Handler) SetAvailable(c *gin.Context) {
	var req machineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidInput(err.Error()))
		return
	}
	if err := h.ctrl.SetAvailable(c.Request.Context(), req.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
