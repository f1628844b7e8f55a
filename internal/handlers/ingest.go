package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ryandmonk/knowledge-graph-brain/internal/requestdata"
	"github.com/ryandmonk/knowledge-graph-brain/internal/services"
)

type IngestHandler struct {
	ingest services.IngestService
	auth   services.AuthService
}

func NewIngestHandler(ingest services.IngestService, auth services.AuthService) *IngestHandler {
	return &IngestHandler{ingest: ingest, auth: auth}
}

type ingestRequest struct {
	KBID      string           `json:"kb_id" binding:"required"`
	SourceID  string           `json:"source_id" binding:"required"`
	Documents []map[string]any `json:"documents"`
}

// POST /api/ingest
func (h *IngestHandler) Trigger(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	authCtx := requestdata.GetAuth(c.Request.Context())
	if err := h.auth.Authorize(authCtx, "ingest", "trigger", req.KBID); err != nil {
		RespondServiceError(c, err)
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), req.KBID, req.SourceID, req.Documents)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}
