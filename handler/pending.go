package handler

import (
	"net/http"

	"github.com/MUKTHARS/clmprod-sub000/service"
	"github.com/gin-gonic/gin"
)

type PendingHandler struct {
	pending *service.PendingService
}

func NewPendingHandler(pending *service.PendingService) *PendingHandler {
	return &PendingHandler{pending: pending}
}

// Counts returns pending work for every role and for the caller
func (h *PendingHandler) Counts(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	counts, err := h.pending.Counts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"counts": counts,
		"role":   p.Role,
		"mine":   counts.For(p.Role),
	})
}
