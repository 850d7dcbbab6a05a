package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/joojle/joojle-chat/internal/chat"
	"github.com/joojle/joojle-chat/internal/common"
	"github.com/joojle/joojle-chat/internal/httpapi/middleware"
	"github.com/joojle/joojle-chat/internal/store/rabbitmq"
)

func userIDFromContext(c *gin.Context) (string, bool) {
	uid := c.GetString(middleware.UserIDKey)
	return uid, uid != ""
}

// failFromErr maps the service taxonomy to status codes in exactly one
// place. Anything outside the taxonomy is a logged 500 with a generic body.
func (h *Handler) failFromErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 10001, "invalid input")
	case errors.Is(err, chat.ErrForbidden):
		common.Fail(c, http.StatusForbidden, 40301, "not your chat")
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "chat not found")
	case errors.Is(err, chat.ErrCompletion):
		h.Log.Warn("completion failed", zap.Error(err))
		common.Fail(c, http.StatusBadGateway, 50201, "failed to generate a reply")
	default:
		h.Log.Error("internal error", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

// chatIDParam parses the :id path segment. A non-numeric id cannot resolve
// to a chat, so it reads as not found rather than bad input.
func chatIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		common.Fail(c, http.StatusNotFound, 40402, "chat not found")
		return 0, false
	}
	return id, true
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chats, err := h.ChatSvc.ListChats(c.Request.Context(), uid)
	if err != nil {
		h.failFromErr(c, err)
		return
	}
	common.OK(c, chats)
}

type createChatReq struct {
	Title string `json:"title"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	created, err := h.ChatSvc.CreateChat(c.Request.Context(), uid, req.Title)
	if err != nil {
		h.failFromErr(c, err)
		return
	}

	h.publishEvent(c.Request.Context(), rabbitmq.Event{
		Type:    rabbitmq.EventChatCreated,
		OwnerID: uid,
		ChatID:  created.ID,
	})
	common.Created(c, created)
}

func (h *Handler) GetChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	id, ok := chatIDParam(c)
	if !ok {
		return
	}

	ch, msgs, err := h.ChatSvc.ChatWithMessages(c.Request.Context(), uid, id)
	if err != nil {
		h.failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"chat": ch, "messages": msgs})
}

func (h *Handler) DeleteChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	id, ok := chatIDParam(c)
	if !ok {
		return
	}

	if err := h.ChatSvc.DeleteChat(c.Request.Context(), uid, id); err != nil {
		h.failFromErr(c, err)
		return
	}

	h.publishEvent(c.Request.Context(), rabbitmq.Event{
		Type:    rabbitmq.EventChatDeleted,
		OwnerID: uid,
		ChatID:  id,
	})
	common.NoContent(c)
}

type sendMessageReq struct {
	Content  string  `json:"content"`
	ImageURL *string `json:"imageUrl"`
}

// SendMessage appends the caller's message and answers with the assistant
// reply, streamed as SSE fragments by default or as one JSON message with
// ?stream=false.
func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	id, ok := chatIDParam(c)
	if !ok {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	displayName := h.displayNameFor(c.Request.Context(), uid)

	if c.Query("stream") == "false" {
		msg, err := h.ChatSvc.SendMessage(c.Request.Context(), uid, id, req.Content, req.ImageURL, displayName)
		if err != nil {
			h.failFromErr(c, err)
			return
		}
		h.publishEvent(c.Request.Context(), rabbitmq.Event{
			Type:      rabbitmq.EventMessageAppended,
			OwnerID:   uid,
			ChatID:    id,
			MessageID: msg.ID,
		})
		common.Created(c, msg)
		return
	}

	chunks, final, errs := h.ChatSvc.SendMessageStream(c.Request.Context(), uid, id, req.Content, req.ImageURL, displayName)

	// Hold off on SSE headers until the first event so pre-stream failures
	// (ownership, validation) keep their real status codes.
	select {
	case err := <-errs:
		if err != nil {
			h.failFromErr(c, err)
			return
		}
		// Closed without error: the turn already finished.
		if m, ok := <-final; ok {
			h.publishEvent(c.Request.Context(), rabbitmq.Event{
				Type: rabbitmq.EventMessageAppended, OwnerID: uid, ChatID: id, MessageID: m.ID,
			})
			common.Created(c, m)
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	case frag, ok := <-chunks:
		h.streamReply(c, uid, id, frag, ok, chunks, final, errs)
	}
}

// streamReply forwards assistant fragments as SSE. Wire format follows the
// web client contract: data: {"content": "..."} per fragment, then
// data: {"done": true, "message": {...}}.
func (h *Handler) streamReply(c *gin.Context, uid string, chatID int64, first string, firstOK bool, chunks <-chan string, final <-chan *chat.Message, errs <-chan error) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.Log.Error("response writer does not support flushing")
		return
	}

	write := func(payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		flusher.Flush()
	}

	if firstOK {
		write(gin.H{"content": first})
	} else {
		chunks = nil
	}

	ctx := c.Request.Context()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case frag, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			write(gin.H{"content": frag})

		case <-ticker.C:
			// SSE comment keeps proxies from closing an idle stream.
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				write(gin.H{"error": clientMessage(err)})
				return
			}

		case m, ok := <-final:
			if !ok {
				final = nil
				if chunks == nil && errs == nil {
					return
				}
				continue
			}
			h.publishEvent(ctx, rabbitmq.Event{
				Type: rabbitmq.EventMessageAppended, OwnerID: uid, ChatID: chatID, MessageID: m.ID,
			})
			write(gin.H{"done": true, "message": m})
			return

		case <-ctx.Done():
			// Client went away. Keep draining so the in-flight completion
			// finishes and the assistant message is still persisted.
			go drainTurn(chunks, final, errs)
			return
		}
	}
}

// clientMessage is the safe text for mid-stream failures; raw provider or
// storage detail stays in the logs.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return "invalid input"
	case errors.Is(err, chat.ErrForbidden):
		return "not your chat"
	case errors.Is(err, chat.ErrNotFound):
		return "chat not found"
	case errors.Is(err, chat.ErrCompletion):
		return "failed to generate a reply"
	default:
		return "internal error"
	}
}

func drainTurn(chunks <-chan string, final <-chan *chat.Message, errs <-chan error) {
	for chunks != nil || final != nil || errs != nil {
		select {
		case _, ok := <-chunks:
			if !ok {
				chunks = nil
			}
		case _, ok := <-final:
			if !ok {
				final = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}
}
