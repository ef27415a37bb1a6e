package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/routes-backend-go/internal/config"
	"github.com/jengzang/routes-backend-go/internal/handler"
	"github.com/jengzang/routes-backend-go/internal/middleware"
	"github.com/jengzang/routes-backend-go/internal/service"
	"go.uber.org/zap"
)

// SetupRouter wires the HTTP API. limiter may be nil to disable rate limiting; a nil
// logger discards request logs.
func SetupRouter(cfg *config.Config, routeService *service.RouteService, limiter *middleware.RateLimiter, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(log))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.Server.AllowOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Routes Backend API is running",
			"cache":   routeService.Stats(),
		})
	})

	routeHandler := handler.NewRouteHandler(routeService, log)
	spatialHandler := handler.NewSpatialHandler(routeService)

	api := r.Group("/api/v1")
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	{
		activities := api.Group("/activities")
		{
			activities.POST("", routeHandler.IngestActivities)
			activities.GET("/:id/signature", routeHandler.GetSignature)
			activities.GET("/:id/match", routeHandler.GetMatch)
			activities.GET("/:id/related", routeHandler.GetRelated)
		}

		routes := api.Group("/routes")
		{
			routes.GET("", routeHandler.ListRoutes)
			routes.GET("/:id", routeHandler.GetRoute)
			routes.PATCH("/:id", routeHandler.RenameRoute)
			routes.GET("/:id/geojson", routeHandler.GetRouteGeoJSON)
		}

		spatialGroup := api.Group("/spatial")
		{
			spatialGroup.GET("/viewport", spatialHandler.Viewport)
			spatialGroup.GET("/radius", spatialHandler.Radius)
		}

		api.POST("/sections/overlaps", spatialHandler.SectionOverlaps)
	}

	return r
}
