package client_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joojle/joojle-chat/internal/ai"
	"github.com/joojle/joojle-chat/internal/auth"
	"github.com/joojle/joojle-chat/internal/chat"
	"github.com/joojle/joojle-chat/internal/client"
	"github.com/joojle/joojle-chat/internal/common"
	"github.com/joojle/joojle-chat/internal/config"
	"github.com/joojle/joojle-chat/internal/httpapi"
	"github.com/joojle/joojle-chat/internal/httpapi/handlers"
	"github.com/joojle/joojle-chat/internal/models"
)

// scriptedProvider serves canned replies; an optional gate makes Chat block
// until released so in-flight behavior can be observed.
type scriptedProvider struct {
	reply  string
	chunks []string
	err    error
	gate   chan struct{}
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = messages
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	_ = ctx
	_ = messages
	chunks := make(chan string, len(p.chunks)+1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if p.gate != nil {
			<-p.gate
		}
		if p.err != nil {
			errs <- p.err
			return
		}
		if len(p.chunks) == 0 {
			chunks <- p.reply
			return
		}
		for _, c := range p.chunks {
			chunks <- c
		}
	}()
	return chunks, errs
}

func startServer(t *testing.T, prov ai.Provider) (*httptest.Server, *gorm.DB, config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &chat.Chat{}, &chat.Message{}))

	cfg := config.Config{
		JWTSecret:             "test-secret",
		TokenTTL:              time.Hour,
		AIProvider:            "fake",
		SystemPrompt:          "You are Joojle AI, a helpful and intelligent AI assistant.",
		ChatContextWindowSize: 20,
	}

	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		_ = model
		return prov, nil
	})
	svc := chat.NewService(chat.NewRepo(db), reg, "fake", "", cfg.SystemPrompt, cfg.ChatContextWindowSize, zap.NewNop())

	h := &handlers.Handler{DB: db, Cfg: cfg, Log: zap.NewNop(), ChatSvc: svc}
	srv := httptest.NewServer(httpapi.RouterFor(h, zap.NewNop(), nil))
	t.Cleanup(srv.Close)
	return srv, db, cfg
}

func newSession(t *testing.T, srv *httptest.Server, db *gorm.DB, cfg config.Config, email string) *client.Session {
	t.Helper()
	id, err := common.NewULID()
	require.NoError(t, err)
	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)
	u := models.User{ID: id, Email: email, DisplayName: strings.SplitN(email, "@", 2)[0], PasswordHash: hash}
	require.NoError(t, db.Create(&u).Error)
	token, err := auth.SignJWT(u.ID, cfg.JWTSecret, cfg.TokenTTL)
	require.NoError(t, err)
	return client.NewSession(client.New(srv.URL, token), client.NewCache(), u.ID)
}

func TestSend_ConvergesOnServerState(t *testing.T) {
	srv, db, cfg := startServer(t, &scriptedProvider{reply: "hello back"})
	s := newSession(t, srv, db, cfg, "a@example.com")
	ctx := context.Background()

	created, err := s.CreateChat(ctx, "first")
	require.NoError(t, err)
	_, err = s.Open(ctx, created.ID)
	require.NoError(t, err)

	msg, err := s.Send(ctx, created.ID, "hi there", nil)
	require.NoError(t, err)
	require.Equal(t, chat.RoleAssistant, msg.Role)
	require.Equal(t, "hello back", msg.Content)

	// Settled state is the server's: two messages, all with positive ids.
	msgs := s.Messages(created.ID)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.Positive(t, m.ID)
	}
	require.Equal(t, chat.RoleUser, msgs[0].Role)
	require.Equal(t, "hi there", msgs[0].Content)
}

func TestSend_RollbackOnFailure(t *testing.T) {
	srv, db, cfg := startServer(t, &scriptedProvider{err: fmt.Errorf("provider down")})
	s := newSession(t, srv, db, cfg, "a@example.com")
	ctx := context.Background()

	created, err := s.CreateChat(ctx, "flaky")
	require.NoError(t, err)
	_, err = s.Open(ctx, created.ID)
	require.NoError(t, err)

	before := s.Messages(created.ID)
	_, err = s.Send(ctx, created.ID, "anyone home", nil)
	require.Error(t, err)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 502, apiErr.Status)

	// No ghost message: the displayed list is back to the pre-send snapshot.
	require.Equal(t, before, s.Messages(created.ID))

	// A later send may proceed; the slot was released.
	_, err = s.Send(ctx, created.ID, "retry", nil)
	require.Error(t, err)
}

func TestSend_SecondSendRejectedWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	srv, db, cfg := startServer(t, &scriptedProvider{reply: "slow reply", gate: gate})
	s := newSession(t, srv, db, cfg, "a@example.com")
	ctx := context.Background()

	created, err := s.CreateChat(ctx, "busy")
	require.NoError(t, err)
	_, err = s.Open(ctx, created.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(ctx, created.ID, "first", nil)
		done <- err
	}()

	// Wait for the optimistic placeholder to appear, then try a second send.
	require.Eventually(t, func() bool {
		msgs := s.Messages(created.ID)
		return len(msgs) == 1 && msgs[0].ID < 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err = s.Send(ctx, created.ID, "second", nil)
	require.ErrorIs(t, err, client.ErrSendInFlight)

	close(gate)
	require.NoError(t, <-done)
	require.Len(t, s.Messages(created.ID), 2)
}

func TestSendStream_RendersLivePartials(t *testing.T) {
	srv, db, cfg := startServer(t, &scriptedProvider{chunks: []string{"stre", "amed ", "reply"}})
	s := newSession(t, srv, db, cfg, "a@example.com")
	ctx := context.Background()

	created, err := s.CreateChat(ctx, "live")
	require.NoError(t, err)
	_, err = s.Open(ctx, created.ID)
	require.NoError(t, err)

	var sawPlaceholderUser, sawPartialAssistant bool
	msg, err := s.SendStream(ctx, created.ID, "go on", nil, func(msgs []chat.Message) {
		for _, m := range msgs {
			if m.ID < 0 && m.Role == chat.RoleUser {
				sawPlaceholderUser = true
			}
			if m.ID < 0 && m.Role == chat.RoleAssistant && m.Content != "" && m.Content != "streamed reply" {
				sawPartialAssistant = true
			}
		}
	})
	require.NoError(t, err)
	require.Equal(t, "streamed reply", msg.Content)
	require.True(t, sawPlaceholderUser, "optimistic user message should render before confirmation")
	require.True(t, sawPartialAssistant, "assistant reply should render incrementally")

	// Settled: the placeholders are gone, replaced by confirmed rows.
	msgs := s.Messages(created.ID)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.Positive(t, m.ID)
	}
	require.Equal(t, "streamed reply", msgs[1].Content)
}

func TestCreateAndDeleteChat_InvalidateList(t *testing.T) {
	srv, db, cfg := startServer(t, &scriptedProvider{reply: "ok"})
	s := newSession(t, srv, db, cfg, "a@example.com")
	ctx := context.Background()

	chats, err := s.Chats(ctx)
	require.NoError(t, err)
	require.Empty(t, chats)

	created, err := s.CreateChat(ctx, "fresh")
	require.NoError(t, err)

	chats, err = s.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, created.ID, chats[0].ID)

	require.NoError(t, s.DeleteChat(ctx, created.ID))
	chats, err = s.Chats(ctx)
	require.NoError(t, err)
	require.Empty(t, chats)
}

func TestSession_IsolatedPerOwner(t *testing.T) {
	srv, db, cfg := startServer(t, &scriptedProvider{reply: "ok"})
	alice := newSession(t, srv, db, cfg, "alice@example.com")
	bob := newSession(t, srv, db, cfg, "bob@example.com")
	ctx := context.Background()

	created, err := alice.CreateChat(ctx, "alice only")
	require.NoError(t, err)

	_, err = bob.Open(ctx, created.ID)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 403, apiErr.Status)

	chats, err := bob.Chats(ctx)
	require.NoError(t, err)
	require.Empty(t, chats)
}
