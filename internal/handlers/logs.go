package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLogs returns reconcile logs with pagination
func (h *Handlers) GetLogs(c *gin.Context) {
	page, limit, offset := pagination(c)

	logs, total, err := h.svc.ListLogs(c.Request.Context(), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs": logs,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetLog returns a single log by ID
func (h *Handlers) GetLog(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entry, err := h.svc.GetLog(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
