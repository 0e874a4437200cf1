package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fission/internal/logging"
	"fission/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(observability.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start).Round(time.Microsecond)
		switch {
		case status >= 500:
			logger.Error("%s %s -> %d (%s) request_id=%s", c.Request.Method, c.FullPath(), status, latency, requestID)
		case status >= 400:
			logger.Warn("%s %s -> %d (%s) request_id=%s", c.Request.Method, c.FullPath(), status, latency, requestID)
		default:
			logger.Debug("%s %s -> %d (%s) request_id=%s", c.Request.Method, c.FullPath(), status, latency, requestID)
		}
	}
}
