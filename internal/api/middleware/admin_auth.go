package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthMiddleware requires "Authorization: Bearer <admin key>" matching the
// configured bcrypt hash. An empty hash rejects every request.
func AdminAuthMiddleware(apiKeyHash string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKeyHash == "" {
			logger.Warn("Admin API key hash not configured, rejecting admin request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin access disabled"})
			return
		}

		header := c.GetHeader("Authorization")
		apiKey := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || apiKey == "" || apiKey == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(apiKey)); err != nil {
			logger.Warn("Invalid admin API key", zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Next()
	}
}
