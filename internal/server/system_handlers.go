package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fitpass/internal/api"
	"fitpass/internal/payout"
	"fitpass/internal/report"
)

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200 {object} api.HealthResponse
// @Router       /health [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{Status: "ok"})
}

// @Summary      Queue a test payout report
// @Tags         system
// @Produce      json
// @Success      200 {object} api.MessageResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /test-report [get]
func TestReport(reports *report.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		sample := payout.RunReport{
			Period:     payout.PeriodOf(now),
			StartedAt:  now,
			FinishedAt: now,
		}

		if err := reports.Enqueue(c.Request.Context(), sample); err != nil {
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, api.MessageResponse{Message: "Report queued successfully"})
	}
}

// @Summary      Prometheus metrics
// @Description  Exposes Prometheus metrics in text format
// @Tags         system
// @Produce      text/plain
// @Success      200 {string} string
// @Router       /metrics [get]
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
