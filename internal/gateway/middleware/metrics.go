package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sentra-retail/internal/metrics"
)

// Metrics records a request counter and latency histogram per route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.TrackRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), start)
	}
}
