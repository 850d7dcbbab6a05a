package handlers

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joojle/joojle-chat/internal/ai"
	"github.com/joojle/joojle-chat/internal/chat"
	"github.com/joojle/joojle-chat/internal/config"
	"github.com/joojle/joojle-chat/internal/models"
	"github.com/joojle/joojle-chat/internal/store/rabbitmq"
)

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	Log     *zap.Logger
	ChatSvc *chat.Service
	// Events is nil when no broker is configured; publishing is always
	// best effort.
	Events *rabbitmq.Publisher
}

func NewHandler(db *gorm.DB, cfg config.Config, log *zap.Logger, events *rabbitmq.Publisher) *Handler {
	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, model), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})

	repo := chat.NewRepo(db)
	svc := chat.NewService(repo, reg, cfg.AIProvider, "", cfg.SystemPrompt, cfg.ChatContextWindowSize, log)

	return &Handler{DB: db, Cfg: cfg, Log: log, ChatSvc: svc, Events: events}
}

// publishEvent is fire-and-forget; a broker outage never fails a request.
func (h *Handler) publishEvent(ctx context.Context, ev rabbitmq.Event) {
	if h.Events == nil {
		return
	}
	if err := h.Events.Publish(ctx, ev); err != nil {
		h.Log.Warn("publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}

// displayNameFor resolves the caller's display name for persona
// personalization; an empty name just skips the personalization.
func (h *Handler) displayNameFor(ctx context.Context, userID string) string {
	var u models.User
	if err := h.DB.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return ""
	}
	return u.DisplayName
}
