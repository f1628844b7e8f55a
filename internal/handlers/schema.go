package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ryandmonk/knowledge-graph-brain/internal/requestdata"
	"github.com/ryandmonk/knowledge-graph-brain/internal/schema"
	"github.com/ryandmonk/knowledge-graph-brain/internal/services"
)

type SchemaHandler struct {
	schemas services.SchemaService
	auth    services.AuthService
}

func NewSchemaHandler(schemas services.SchemaService, auth services.AuthService) *SchemaHandler {
	return &SchemaHandler{schemas: schemas, auth: auth}
}

// POST /api/schemas
// The target kb_id lives inside the document, so the KB scope check happens
// here after parsing rather than in route middleware.
func (h *SchemaHandler) Register(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	doc, err := schema.Parse(raw)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_SCHEMA", err)
		return
	}
	authCtx := requestdata.GetAuth(c.Request.Context())
	if err := h.auth.Authorize(authCtx, "schema", "register", doc.KBID); err != nil {
		RespondServiceError(c, err)
		return
	}

	result, err := h.schemas.RegisterDocument(c.Request.Context(), doc)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}
