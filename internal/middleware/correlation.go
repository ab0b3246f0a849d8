package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ritikkatiyar/ecom-storefront/internal/identity"
)

const (
	// CorrelationIDHeader is the header carrying the correlation id
	CorrelationIDHeader = "X-Correlation-Id"
	// CorrelationIDKey is the gin context key for the correlation id
	CorrelationIDKey = "correlation_id"
	// BrowserIDKey is the gin context key for the browsing context id
	BrowserIDKey = "browser_id"
)

// CorrelationID adopts the caller's correlation id or issues a new one and
// echoes it on the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = identity.NewCorrelationID()
		}

		c.Set(CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

// GetCorrelationID returns the correlation id from context
func GetCorrelationID(c *gin.Context) string {
	if id, exists := c.Get(CorrelationIDKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
