package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics are the collectors updated by Metrics.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec   // labels: method, route, status
	Duration *prometheus.HistogramVec // labels: method, route
}

// Metrics returns a middleware that records request counts and latency.
// Unmatched routes are recorded as "unmatched" to bound label cardinality.
func Metrics(m HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		if m.Requests != nil {
			m.Requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		}
		if m.Duration != nil {
			m.Duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		}
	}
}
