package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/stockroomhq/inventory-gateway/internal/models"
)

const (
	// Context keys set by the middleware chain.
	ContextTenantKey    = "tenant"
	ContextTokenMetaKey = "token_meta"
	ContextRequestIDKey = "request_id"
)

// TenantFromContext returns the identity attached by Authenticate.
func TenantFromContext(c *gin.Context) (*models.TenantIdentity, bool) {
	v, exists := c.Get(ContextTenantKey)
	if !exists || v == nil {
		return nil, false
	}

	tenant, ok := v.(*models.TenantIdentity)
	return tenant, ok
}
