package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"pushlytics/api/logging"
	"pushlytics/api/metrics"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID or assigns a new one, and
// carries it on the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = logging.NewRequestID()
		}
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// RequestLogger logs each request and records API metrics under the matched
// route pattern.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		metrics.RecordAPIRequest(c.Request.Method, endpoint, status, latency)

		log := logging.Ctx(c.Request.Context())
		evt := log.Info()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400:
			evt = log.Warn()
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", endpoint).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}
