package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ryandmonk/knowledge-graph-brain/internal/handlers"
	"github.com/ryandmonk/knowledge-graph-brain/internal/middleware"
	"github.com/ryandmonk/knowledge-graph-brain/internal/observability"
)

type RouterConfig struct {
	AuthMiddleware *middleware.AuthMiddleware
	SchemaHandler  *handlers.SchemaHandler
	IngestHandler  *handlers.IngestHandler
	StatusHandler  *handlers.StatusHandler
	AuthHandler    *handlers.AuthHandler
	AllowOrigins   []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		AllowCredentials: true,
	}))
	router.Use(middleware.Metrics())

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/metrics", func(c *gin.Context) {
		observability.Current().WriteHTTP(c.Writer, c.Request)
	})

	// Everything under /api requires a valid API key; per-route permissions
	// follow the seeded RBAC grants.
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		api.POST("/schemas", cfg.SchemaHandler.Register)
		api.POST("/ingest", cfg.IngestHandler.Trigger)
		api.GET("/kb/:kb_id/status", cfg.AuthMiddleware.RequirePermission("status", "read"), cfg.StatusHandler.KnowledgeBase)
		api.GET("/status", cfg.AuthMiddleware.RequirePermission("status", "read"), cfg.StatusHandler.System)
		api.POST("/keys", cfg.AuthMiddleware.RequirePermission("apikey", "manage"), cfg.AuthHandler.CreateKey)
		api.DELETE("/keys/:key_id", cfg.AuthMiddleware.RequirePermission("apikey", "manage"), cfg.AuthHandler.RevokeKey)
	}

	return router
}
