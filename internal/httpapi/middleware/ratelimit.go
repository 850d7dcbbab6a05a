package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/joojle/joojle-chat/internal/common"
	"github.com/joojle/joojle-chat/internal/store/redisstore"
)

// MessageRateLimit bounds message sends per user. Attached after
// AuthRequired. Fails open when redis is unreachable so chat keeps working
// through a cache outage.
func MessageRateLimit(store *redisstore.Store, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.Next()
			return
		}
		uid := c.GetString(UserIDKey)
		if uid == "" {
			c.Next()
			return
		}

		allowed, err := store.AllowMessage(c.Request.Context(), uid, limit, window)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			common.Fail(c, http.StatusTooManyRequests, 42901, "too many messages, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
