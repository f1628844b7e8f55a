package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ryandmonk/knowledge-graph-brain/internal/services"
)

type AuthHandler struct {
	auth services.AuthService
}

func NewAuthHandler(auth services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type createKeyRequest struct {
	Name          string   `json:"name" binding:"required"`
	Roles         []string `json:"roles" binding:"required"`
	KBScopes      []string `json:"kb_scopes"`
	ExpiresInDays int      `json:"expires_in_days"`
}

// POST /api/keys
func (h *AuthHandler) CreateKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	created, err := h.auth.CreateKey(c.Request.Context(), req.Name, req.Roles, req.KBScopes, req.ExpiresInDays)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, created)
}

// DELETE /api/keys/:key_id
func (h *AuthHandler) RevokeKey(c *gin.Context) {
	keyID := c.Param("key_id")
	revoked, err := h.auth.RevokeKey(c.Request.Context(), keyID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if !revoked {
		RespondError(c, http.StatusNotFound, "KEY_NOT_FOUND", fmt.Errorf("no active key %s", keyID))
		return
	}
	RespondOK(c, gin.H{"key_id": keyID, "revoked": true})
}
