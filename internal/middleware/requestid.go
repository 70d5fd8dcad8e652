package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader propagates the request identifier between services.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request id, read by the
	// request logger and available to handlers.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware tags every request with an identifier. An inbound
// X-Request-ID set by an upstream proxy or caller is reused unchanged so a
// credential operation can be traced across hops; otherwise a fresh UUID is
// assigned. The id is stored under RequestIDKey and echoed in the response
// header. Register before the request logger so every log line carries it.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
