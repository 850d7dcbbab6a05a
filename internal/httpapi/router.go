package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joojle/joojle-chat/internal/common"
	"github.com/joojle/joojle-chat/internal/config"
	"github.com/joojle/joojle-chat/internal/httpapi/handlers"
	"github.com/joojle/joojle-chat/internal/httpapi/middleware"
	"github.com/joojle/joojle-chat/internal/store/rabbitmq"
	"github.com/joojle/joojle-chat/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, log *zap.Logger, rds *redisstore.Store, events *rabbitmq.Publisher) *gin.Engine {
	return RouterFor(handlers.NewHandler(db, cfg, log, events), log, rds)
}

// RouterFor wires routes around an existing handler. Split out so tests can
// inject a handler with a fake provider.
func RouterFor(h *handlers.Handler, log *zap.Logger, rds *redisstore.Store) *gin.Engine {
	cfg := h.Cfg
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	authed := api.Group("/")
	authed.Use(middleware.AuthRequired(cfg.JWTSecret))
	authed.GET("/me", h.Me)
	authed.GET("/chats", h.ListChats)
	authed.POST("/chats", h.CreateChat)
	authed.GET("/chats/:id", h.GetChat)
	authed.DELETE("/chats/:id", h.DeleteChat)
	authed.POST("/chats/:id/messages",
		middleware.MessageRateLimit(rds, cfg.MessageRateLimit, cfg.MessageRateWindow, log),
		h.SendMessage)

	return r
}
