package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/apierr"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
	"github.com/ryandmonk/knowledge-graph-brain/internal/requestdata"
	"github.com/ryandmonk/knowledge-graph-brain/internal/services"
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		log:         log.With("middleware", "AuthMiddleware"),
		authService: authService,
	}
}

// RequireAuth validates the presented API key and stores the resolved
// AuthContext on the request context. No key or an invalid key aborts with
// 401; the reason is audit-logged, not leaked to the caller.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractAPIKey(c)
		if token == "" {
			am.authService.RecordMissingKey(c.Request.Context())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}
		authCtx, err := am.authService.ValidateKey(c.Request.Context(), token)
		if err != nil {
			am.log.Error("key validation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth backend unavailable"})
			return
		}
		if authCtx == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{Auth: authCtx})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequirePermission enforces (resource, action) plus KB scope when the route
// carries a :kb_id param. Routes whose target KB lives in the request body
// re-check the scope in their handler.
func (am *AuthMiddleware) RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authCtx := requestdata.GetAuth(c.Request.Context())
		if err := am.authService.Authorize(authCtx, resource, action, c.Param("kb_id")); err != nil {
			var apiErr *apierr.Error
			if errors.As(err, &apiErr) {
				c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr.Error()})
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
