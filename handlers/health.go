package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BreakerReporter exposes the primary backend breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// HealthCheck reports liveness and, when known, the primary breaker state.
func HealthCheck(b BreakerReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if b != nil {
			body["primary_breaker"] = b.BreakerState()
		}
		c.JSON(http.StatusOK, body)
	}
}
