package middleware

import (
	"thermbridge/internal/idgen"

	"github.com/gin-gonic/gin"
)

const RequestIDKey = "X-Request-ID"

// Callers may supply their own id for cross-system tracing, but anything
// longer than this is replaced so log lines stay bounded.
const maxRequestIDLength = 64

// RequestID tags every request with an id, echoed in the response header
// and attached to all log lines downstream.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDKey)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = idgen.NewRequest()
		}
		c.Header(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)
		c.Next()
	}
}
