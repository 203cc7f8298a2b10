package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"materialflow/internal/service"
)

const ContextKeyClient = "client_id"

// ServiceAuth returns Gin middleware that validates API service tokens and
// injects the calling client's ID.
func ServiceAuth(tokens service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "missing or invalid authorization header"},
			})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.ValidateServiceToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "invalid or expired token"},
			})
			return
		}

		c.Set(ContextKeyClient, claims.Subject)
		c.Next()
	}
}

// GetClientID returns the authenticated client ID, or "" on unauthenticated routes.
func GetClientID(c *gin.Context) string {
	return c.GetString(ContextKeyClient)
}
