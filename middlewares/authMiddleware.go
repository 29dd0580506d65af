package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/qbo_sync/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and scopes the request context to
// the tenant the token was issued for. Requests without a token pass through
// unauthenticated; handlers that need a tenant reject them.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.TrimSpace(c.Request.Header.Get("Authorization"))
		if auth == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		token := strings.TrimSpace(auth[len("bearer "):])

		validated, err := utils.JwtValidate(token)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok || strings.TrimSpace(claim.TenantId) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetTenantIdInContext(ctx, claim.TenantId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
