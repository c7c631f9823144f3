package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/hmxfpv/admin-api/internal/service"
)

// AuditMeta copies the caller's IP and user agent into the request context so
// audit entries written by services record who made the change and from where.
func AuditMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithAuditMeta(c.Request.Context(), service.AuditMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
