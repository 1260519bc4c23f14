package httpapi

import (
	"net/http"
	"strings"

	"github.com/avolkovs/vaultshare/internal/server/auth"
	"github.com/avolkovs/vaultshare/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware verifies the bearer token and stores the caller's identity
// in the gin context.
func AuthMiddleware(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := auth.GetClaimsFromToken(token, secretKey)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("username", claims.Username)

		c.Next()
	}
}

// identity reconstructs the authenticated caller set by AuthMiddleware.
func identity(c *gin.Context) services.Identity {
	return services.Identity{
		UserID:   c.GetString("userID"),
		Username: c.GetString("username"),
	}
}
