package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ilpaylabs/ilpay_backend/internal/platform/metrics"
)

// HTTPMetrics records request counts and latency for every route.
func HTTPMetrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		m.RequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
