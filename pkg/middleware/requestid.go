package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is the response/propagation header carrying the
// correlation id RequestID stamps onto every request.
const RequestIDHeader = "X-Request-Id"

// RequestIDKey is the gin context key RequestID stores the id under.
const RequestIDKey = "request_id"

// RequestID stamps every request with a correlation id, storing it in
// the gin context under RequestIDKey and echoing it back in
// X-Request-Id. An incoming X-Request-Id is kept; otherwise a new UUID
// is generated. GinLogger and the metrics middleware do not read it.
func RequestID() gin.HandlerFunc {
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
