package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startedAt = time.Now()

// ReportSource exposes the most recent release report for the status server.
type ReportSource func() (any, bool)

// NewStatusRouter builds the watch-mode HTTP surface: liveness, Prometheus
// metrics, and the latest release report.
func NewStatusRouter(lastReport ReportSource) *gin.Engine {
	RegisterMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(startedAt).String(),
			"service": "releasectl",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/report", func(c *gin.Context) {
		report, ok := lastReport()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no completed run"})
			return
		}
		c.JSON(http.StatusOK, report)
	})
	return r
}
