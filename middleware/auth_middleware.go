package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pushlytics/api/logging"
	"pushlytics/api/utils"
)

// Keys set on the gin context by AuthRequired.
const (
	ContextOrgID  = "org_id"
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// ServiceUserID identifies callers authenticated by API key.
const ServiceUserID = "service"

type AuthConfig struct {
	JWTSecret []byte
	// APIKey, when set, lets internal services authenticate with X-API-KEY and
	// name the organization in X-Org-ID.
	APIKey string
}

// AuthRequired resolves the caller's organization. Every analytics query is
// scoped to that organization.
func AuthRequired(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-API-KEY"); key != "" && cfg.APIKey != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
				logging.Ctx(c.Request.Context()).Warn().Msg("AuthRequired: invalid API key")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API key"})
				return
			}
			orgID := strings.TrimSpace(c.GetHeader("X-Org-ID"))
			if orgID == "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Org-ID header is required with an API key"})
				return
			}
			authorize(c, orgID, ServiceUserID, "service")
			return
		}

		tokenString, err := c.Cookie("jwt_token")
		if err != nil || tokenString == "" {
			tokenString = c.GetHeader("Authorization")
			if tokenString == "" {
				logging.Ctx(c.Request.Context()).Debug().Msg("AuthRequired: no JWT token found in cookie or header")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		}

		claims, err := utils.ValidateJWT(cfg.JWTSecret, tokenString)
		if err != nil {
			logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("AuthRequired: invalid JWT token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}
		authorize(c, claims.OrgID, claims.UserID, claims.Role)
	}
}

func authorize(c *gin.Context, orgID, userID, role string) {
	c.Set(ContextOrgID, orgID)
	c.Set(ContextUserID, userID)
	c.Set(ContextRole, role)
	c.Request = c.Request.WithContext(logging.ContextWithOrgID(c.Request.Context(), orgID))

	logging.Ctx(c.Request.Context()).Debug().Str("user_id", userID).Msg("AuthRequired: caller authenticated")
	c.Next()
}
