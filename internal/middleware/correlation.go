package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"dremio-gateway/internal/utils"
)

const (
	CorrelationIDKey    = "correlation_id"
	CorrelationIDHeader = "X-Correlation-ID"
)

type correlationKey struct{}

// CorrelationID tags every request with an id, reusing the caller's header
// when it holds a valid UUID
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if !utils.IsValidUUID(correlationID) {
			correlationID = utils.GenerateUUID()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		ctx := context.WithValue(c.Request.Context(), correlationKey{}, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetCorrelationID returns the request's correlation id, or ""
func GetCorrelationID(c *gin.Context) string {
	if correlationID, exists := c.Get(CorrelationIDKey); exists {
		if id, ok := correlationID.(string); ok {
			return id
		}
	}
	return ""
}

// CorrelationIDFromContext returns the id stored by CorrelationID, or ""
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
