package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/oneboxhq/onebox/api/handlers"
	"github.com/oneboxhq/onebox/api/middleware"
	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/tracing"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, index interfaces.EmailIndex, engine interfaces.SyncEngine, apikey string) {
	if index == nil {
		panic("EmailIndex cannot be nil")
	}
	if engine == nil {
		panic("SyncEngine cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Health check endpoint (unauthenticated)
	r.GET("/health", handlers.HealthCheck)

	api := r.Group("/v1")
	api.Use(middleware.APIKeyAuth("X-ONEBOX-API-KEY", apikey))
	api.Use(middleware.TracingMiddleware())
	{
		emails := api.Group("/emails")
		{
			emails.GET("", handlers.SearchEmails(index))
			emails.GET("/:id", handlers.GetEmail(index))
			emails.PATCH("/:id", handlers.UpdateEmail(index))
			emails.POST("/:id/interested", handlers.MarkInterested(index))
			emails.DELETE("/:id", handlers.DeleteEmail(index))
		}

		api.POST("/sync", handlers.TriggerSync(engine))
	}
}
