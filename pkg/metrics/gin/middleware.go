package gin

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/echo-labs/echo/pkg/metrics"
)

// PrometheusMiddleware records request count and latency per route.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method + " " + c.FullPath()

		metrics.RecordRequest(method, statusCode, time.Since(start))
	}
}
