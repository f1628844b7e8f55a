package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ryandmonk/knowledge-graph-brain/internal/services"
)

type StatusHandler struct {
	status services.StatusService
}

func NewStatusHandler(status services.StatusService) *StatusHandler {
	return &StatusHandler{status: status}
}

// GET /api/kb/:kb_id/status
func (h *StatusHandler) KnowledgeBase(c *gin.Context) {
	kbID := c.Param("kb_id")
	st, err := h.status.KnowledgeBaseStatus(c.Request.Context(), kbID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if st == nil {
		RespondError(c, http.StatusNotFound, "KB_NOT_FOUND", fmt.Errorf("knowledge base %s is not registered", kbID))
		return
	}
	RespondOK(c, st)
}

// GET /api/status
func (h *StatusHandler) System(c *gin.Context) {
	st, err := h.status.SystemStatus(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, st)
}
