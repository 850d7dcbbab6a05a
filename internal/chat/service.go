package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joojle/joojle-chat/internal/ai"
)

// Service owns every chat/message operation. All reads and mutations are
// scoped to an owner id; handlers never touch the repo directly.
type Service struct {
	repo         *Repo
	registry     *ai.Registry
	providerName string
	model        string
	systemPrompt string
	window       int
	log          *zap.Logger
}

func NewService(repo *Repo, registry *ai.Registry, providerName, model, systemPrompt string, contextWindow int, log *zap.Logger) *Service {
	if contextWindow <= 0 || contextWindow > 100 {
		contextWindow = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:         repo,
		registry:     registry,
		providerName: providerName,
		model:        model,
		systemPrompt: systemPrompt,
		window:       contextWindow,
		log:          log,
	}
}

func (s *Service) ListChats(ctx context.Context, ownerID string) ([]Chat, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id required", ErrValidation)
	}
	return s.repo.ListChatsByOwner(ctx, ownerID)
}

// CreateChat trims the title and falls back to DefaultTitle when nothing is
// left.
func (s *Service) CreateChat(ctx context.Context, ownerID, title string) (*Chat, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id required", ErrValidation)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	c := &Chat{Title: title, OwnerID: ownerID}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetChatForOwner is the single authorization-aware lookup: a missing chat is
// ErrNotFound, someone else's chat is ErrForbidden. Every read or mutation of
// an existing chat goes through here before anything is written.
func (s *Service) GetChatForOwner(ctx context.Context, ownerID string, id int64) (*Chat, error) {
	c, err := s.repo.GetChatByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return c, nil
}

// ChatWithMessages loads a chat and its full message history for the owner.
func (s *Service) ChatWithMessages(ctx context.Context, ownerID string, id int64) (*Chat, []Message, error) {
	c, err := s.GetChatForOwner(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return c, msgs, nil
}

func (s *Service) DeleteChat(ctx context.Context, ownerID string, id int64) error {
	if _, err := s.GetChatForOwner(ctx, ownerID, id); err != nil {
		return err
	}
	return s.repo.DeleteChatCascade(ctx, id)
}

func (s *Service) ListMessages(ctx context.Context, ownerID string, chatID int64) ([]Message, error) {
	if _, err := s.GetChatForOwner(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, chatID)
}

func (s *Service) provider(ctx context.Context) (ai.Provider, error) {
	return s.registry.Get(ctx, s.providerName, s.model)
}

// buildHistory maps recent stored messages to provider messages, oldest
// first, with the persona prompt in front. Image URLs are not forwarded.
func (s *Service) buildHistory(recentDesc []Message, displayName string) []ai.Message {
	prompt := s.systemPrompt
	if displayName != "" {
		prompt += " The user's name is " + displayName + "."
	}
	out := make([]ai.Message, 0, len(recentDesc)+1)
	out = append(out, ai.Message{Role: RoleSystem, Content: prompt})
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// SendMessage persists the user's message, asks the provider for a reply and
// persists that as the assistant message. The user message is durable before
// the provider is called, so a completion failure never loses input.
func (s *Service) SendMessage(ctx context.Context, ownerID string, chatID int64, content string, imageURL *string, displayName string) (*Message, error) {
	history, err := s.beginTurn(ctx, ownerID, chatID, content, imageURL, displayName)
	if err != nil {
		return nil, err
	}

	provider, err := s.provider(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	reply, err := provider.Chat(ctx, history)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, fmt.Errorf("%w: provider returned no content", ErrCompletion)
	}

	return s.finishTurn(ctx, chatID, reply)
}

// SendMessageStream is the streaming variant. It returns immediately; chunks
// carries incremental assistant text, final delivers the persisted assistant
// message, errs any failure. All three close when the turn ends.
//
// The turn runs on a non-cancelable context: a client disconnect stops the
// caller from forwarding chunks but the completion still finishes and is
// persisted, so navigation away never truncates chat history.
func (s *Service) SendMessageStream(ctx context.Context, ownerID string, chatID int64, content string, imageURL *string, displayName string) (<-chan string, <-chan *Message, <-chan error) {
	chunks := make(chan string, 16)
	final := make(chan *Message, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(final)
		defer close(errs)

		ctx := context.WithoutCancel(ctx)

		history, err := s.beginTurn(ctx, ownerID, chatID, content, imageURL, displayName)
		if err != nil {
			errs <- err
			return
		}

		provider, err := s.provider(ctx)
		if err != nil {
			errs <- fmt.Errorf("%w: %v", ErrCompletion, err)
			return
		}

		var reply string
		if sp, ok := provider.(ai.StreamProvider); ok {
			pChunks, pErrs := sp.StreamChat(ctx, history)

			var b strings.Builder
			for c := range pChunks {
				b.WriteString(c)
				chunks <- c
			}
			select {
			case err := <-pErrs:
				if err != nil {
					errs <- fmt.Errorf("%w: %v", ErrCompletion, err)
					return
				}
			default:
			}
			reply = b.String()
		} else {
			// Provider cannot stream; fall back to one blocking call and
			// forward it as a single chunk.
			reply, err = provider.Chat(ctx, history)
			if err != nil {
				errs <- fmt.Errorf("%w: %v", ErrCompletion, err)
				return
			}
			chunks <- reply
		}

		if strings.TrimSpace(reply) == "" {
			errs <- fmt.Errorf("%w: provider returned no content", ErrCompletion)
			return
		}

		assistantMsg, err := s.finishTurn(ctx, chatID, reply)
		if err != nil {
			errs <- err
			return
		}
		final <- assistantMsg
	}()

	return chunks, final, errs
}

// beginTurn runs the shared front half of a send: ownership check strictly
// before any write, then the durable user message insert, then the bounded
// history the provider will see.
func (s *Service) beginTurn(ctx context.Context, ownerID string, chatID int64, content string, imageURL *string, displayName string) ([]ai.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content required", ErrValidation)
	}
	if _, err := s.GetChatForOwner(ctx, ownerID, chatID); err != nil {
		return nil, err
	}

	userMsg := &Message{
		ChatID:   chatID,
		Role:     RoleUser,
		Content:  content,
		ImageURL: imageURL,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, chatID, s.window)
	if err != nil {
		return nil, err
	}
	return s.buildHistory(recentDesc, displayName), nil
}

func (s *Service) finishTurn(ctx context.Context, chatID int64, reply string) (*Message, error) {
	assistantMsg := &Message{
		ChatID:  chatID,
		Role:    RoleAssistant,
		Content: reply,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		s.log.Error("persist assistant message", zap.Int64("chat_id", chatID), zap.Error(err))
		return nil, err
	}
	return assistantMsg, nil
}
