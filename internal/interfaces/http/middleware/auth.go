package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/storefront/backend/internal/interfaces/http/dto"
)

const bearerPrefix = "Bearer "

// SyncSecret guards the sync endpoints with a shared bearer secret.
// An empty secret leaves the endpoints open.
func SyncSecret(secret string) gin.HandlerFunc {
	if secret == "" {
		return passThrough
	}
	expected := []byte(secret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.UnauthorizedResponse{Error: "Unauthorized"})
			return
		}
		c.Next()
	}
}
