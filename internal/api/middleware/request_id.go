package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDHeader is the HTTP header for request tracing.
	RequestIDHeader = "X-Request-ID"

	// TenantHeader carries the caller's tenant for multi-tenant isolation.
	// Absent means the default tenant.
	TenantHeader = "X-Tenant-ID"

	ctxKeyRequestID contextKey = "request_id"
	ctxKeyTenantID  contextKey = "tenant_id"
)

// RequestID injects a unique request ID into the context and response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			id, _ := uuid.NewV7()
			rid = id.String()
		}
		c.Set(string(ctxKeyRequestID), rid)
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), ctxKeyRequestID, rid),
		)
		c.Next()
	}
}

// GetRequestID extracts request ID from context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// Tenant copies the tenant header into the request context.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if t := c.GetHeader(TenantHeader); t != "" {
			c.Request = c.Request.WithContext(
				context.WithValue(c.Request.Context(), ctxKeyTenantID, t),
			)
		}
		c.Next()
	}
}

// GetTenantID extracts the tenant ID from context. Empty means default.
func GetTenantID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTenantID).(string); ok {
		return v
	}
	return ""
}
