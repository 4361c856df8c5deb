package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stockroomhq/inventory-gateway/internal/apierr"
	"github.com/stockroomhq/inventory-gateway/internal/authority"
)

// Resolves the bearer credential to a verified tenant identity via the
// tenant authority. A malformed or missing header is rejected locally
// with no remote call.
func Authenticate(client *authority.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apierr.Abort(c, apierr.TokenMissing())
			return
		}

		// Check Bearer prefix
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			apierr.Abort(c, apierr.TokenInvalid())
			return
		}

		token := parts[1]

		tenant, meta, err := client.Validate(c.Request.Context(), token)
		if err != nil {
			apierr.Abort(c, err)
			return
		}

		// Identity is attached to this request only; nothing global.
		c.Set(ContextTenantKey, tenant)
		c.Set(ContextTokenMetaKey, meta)

		c.Next()
	}
}
