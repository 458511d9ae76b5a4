// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"advisorcrm/internal/infrastructure/http/v1/handlers"
	"advisorcrm/internal/infrastructure/http/v1/middleware"
	"advisorcrm/internal/infrastructure/storage/postgres"
	"advisorcrm/internal/metadata"
	"advisorcrm/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Registry is the frozen class registry served by the introspection API.
	Registry *metadata.Registry

	// Entities serves instance reads. Entity routes are skipped when nil.
	Entities handlers.EntityLoader

	// Pool backs the readiness check. Health routes are skipped when nil.
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// Version reported by /health/info
	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Actor())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	if cfg.Pool != nil {
		healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Version)
		health := router.Group("/health")
		{
			health.GET("/live", healthHandler.Live)
			health.GET("/ready", healthHandler.Ready)
			health.GET("/info", healthHandler.Info)
		}
	}

	v1 := router.Group("/api/v1")
	registerMetaRoutes(v1, cfg)
	registerEntityRoutes(v1, cfg)

	return router
}

// registerMetaRoutes registers metadata/schema endpoints.
func registerMetaRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Registry == nil {
		return
	}

	handler := handlers.NewMetadataHandler(handlers.NewBaseHandler(), cfg.Registry)
	meta := rg.Group("/meta")
	{
		meta.GET("", handler.ListClasses)
		meta.GET("/:class", handler.GetClass)
	}
	rg.GET("/schema/order", handler.WriteOrder)
}

// registerEntityRoutes registers instance read endpoints.
func registerEntityRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Entities == nil {
		return
	}

	handler := handlers.NewEntityHandler(handlers.NewBaseHandler(), cfg.Entities)
	rg.GET("/entities/:class/:id", handler.Get)
}
