package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"laundromat-backend/internal/model"
	"laundromat-backend/internal/parse"
	"laundromat-backend/internal/pricing"
)

// GetQuote handles GET /api/quote?machine=W-11&program=warm&extra=0. The
// machine may be replaced by kind and capacity query parameters.
func (h *Handler) GetQuote(c *gin.Context) {
	extra := 0
	if raw := c.Query("extra"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(c, invalidInput("extra must be an integer"))
			return
		}
		extra = n
	}
	program := pricing.Program(c.Query("program"))

	var (
		offer pricing.Offer
		err   error
	)
	if id := c.Query("machine"); id != "" {
		m, gerr := h.store.Machines().Get(c.Request.Context(), parse.NormalizeID(id))
		if gerr != nil {
			h.fail(c, gerr)
			return
		}
		offer, err = pricing.ForMachine(m, program, extra)
	} else {
		offer, err = pricing.Quote(model.MachineKind(c.Query("kind")), c.Query("capacity"), program, extra)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}
