package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is where the middleware stores the request ID in the
// Gin context, read back by buildMetadata.
const ContextKeyRequestID = "request_id"

// RequestIDMiddleware tags every request with an ID: the caller's
// X-Request-ID header when present, a fresh UUID otherwise. The ID is
// echoed on the response so clients can correlate against server logs.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}
