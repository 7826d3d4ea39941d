package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/retriever/api/handler"
	"github.com/use-agent/retriever/api/middleware"
	"github.com/use-agent/retriever/cache"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/metrics"
	"github.com/use-agent/retriever/webhook"
)

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	// Ctx bounds background batches; cancel it on shutdown.
	Ctx      context.Context
	Runner   handler.BatchRunner
	Gate     metrics.GateStatser
	Jobs     *cache.Jobs
	Notifier *webhook.Notifier
	Metrics  *metrics.Collector
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics
//	API:     Auth (if enabled) → RateLimit
//
// Health and /metrics stay outside auth so probes and scrapers always work.
func NewRouter(cfg *config.Config, d Deps, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	if d.Ctx == nil {
		d.Ctx = context.Background()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")

	// Health, no auth required.
	v1.GET("/health", handler.Health(d.Gate, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/batch", handler.PostBatch(d.Ctx, d.Runner, d.Jobs, d.Notifier))
	protected.GET("/batch/:id", handler.GetBatch(d.Jobs))

	return r
}
