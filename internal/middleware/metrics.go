package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dremio-gateway/internal/metrics"
)

// PrometheusMiddleware is a Gin middleware that records HTTP metrics
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		collectors := metrics.Get()
		if collectors == nil {
			c.Next()
			return
		}

		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		endpoint := c.FullPath()

		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		collectors.HttpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		collectors.HttpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)

		if c.Request.ContentLength > 0 {
			collectors.HttpRequestSize.WithLabelValues(method, endpoint).Observe(float64(c.Request.ContentLength))
		}

		if c.Writer.Size() > 0 {
			collectors.HttpResponseSize.WithLabelValues(method, endpoint).Observe(float64(c.Writer.Size()))
		}
	}
}
