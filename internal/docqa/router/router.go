// Package router provides docqa service routing.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/kart-io/docqa/api/swagger" // swagger docs
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/pkg/httputils"
	"github.com/kart-io/docqa/pkg/middleware"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// multipartOverhead is added to the upload limit for multipart framing.
const multipartOverhead = 1 << 20

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds the router dependencies.
type Config struct {
	Auth          middleware.AuthOptions
	MaxUploadSize int64
	Metrics       *metrics.Metrics
	HealthChecks  map[string]HealthCheck
	// Swagger 为 true 时在 /swagger 下提供 API 文档。
	Swagger bool
}

// New builds the gin engine with the middleware chain and all routes.
func New(h *handler.DocumentHandler, cfg Config) *gin.Engine {
	logger.Info("Registering docqa routes...")

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Tracing(),
		middleware.Logger(),
	)
	if cfg.Metrics != nil {
		engine.Use(middleware.Metrics(middleware.HTTPMetrics{
			Requests: cfg.Metrics.HTTPRequests,
			Duration: cfg.Metrics.HTTPRequestDuration,
		}))
		engine.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	engine.GET("/healthz", healthz(cfg.HealthChecks))
	if cfg.Swagger {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		logger.Info("Swagger UI available at /swagger/index.html")
	}
	engine.NoRoute(func(c *gin.Context) {
		httputils.WriteResponse(c, errors.ErrNotFound, nil)
	})
	engine.NoMethod(func(c *gin.Context) {
		httputils.WriteResponse(c, errors.ErrBadRequest.WithMessage("method not allowed"), nil)
	})

	v1 := engine.Group("/api/v1", middleware.Auth(cfg.Auth))
	{
		docs := v1.Group("/documents")
		{
			docs.POST("/upload", middleware.BodyLimit(cfg.MaxUploadSize+multipartOverhead), h.Upload)
			docs.GET("", h.List)
			docs.GET("/:id/status", h.Status)
			docs.DELETE("/:id", h.Delete)
			docs.POST("/:id/retry", h.Retry)

			docs.POST("/search", h.Search)
			docs.POST("/chat", h.Chat)
		}
	}

	logger.Info("HTTP routes registered")
	return engine
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				healthy = false
				status[name] = err.Error()
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": status})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": status})
	}
}
