package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/retriever/metrics"
	"github.com/use-agent/retriever/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports gate occupancy and degrades status when more than two tasks per
// session slot are queued.
func Health(gate metrics.GateStatser, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := gate.Stats()

		status := "healthy"
		if stats.Capacity > 0 && stats.Waiting > 2*stats.Capacity {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			GateStats: stats,
			Version:   Version,
		})
	}
}
