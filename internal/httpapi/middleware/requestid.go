package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/joojle/joojle-chat/internal/common"
)

const RequestIDKey = "request_id"

// RequestID honors an inbound X-Request-ID (clients send one per request for
// correlation) or mints a ULID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" || len(rid) > 64 {
			if id, err := common.NewULID(); err == nil {
				rid = id
			}
		}
		c.Set(RequestIDKey, rid)
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}
