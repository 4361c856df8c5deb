package middleware

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/stockroomhq/inventory-gateway/internal/apierr"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString(ContextRequestIDKey)
				log.Printf("[%s] PANIC: %v", requestID, err)

				apierr.Abort(c, apierr.Internal())
			}
		}()
		c.Next()
	}
}
