package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/joojle/joojle-chat/internal/chat"
)

// ErrSendInFlight is returned when a send is attempted on a chat that
// already has an optimistic message awaiting settlement. The protocol allows
// at most one pending optimistic entry per chat; callers disable their
// submit control while a send is pending.
var ErrSendInFlight = errors.New("client: a send is already in flight for this chat")

// Session coordinates the query cache for one signed-in user: it serves
// reads from server-confirmed state and runs the optimistic send protocol
// for message submission.
//
// Send protocol: snapshot the cached chat detail, append a placeholder user
// message with an id drawn from the negative space (never colliding with
// server-assigned ids), issue the real request, then settle. On success the
// authoritative state is refetched and replaces the optimistic copy wholesale,
// so the placeholder can never be double-rendered next to its confirmed twin.
// On failure the snapshot is restored and no ghost message survives.
type Session struct {
	api   *Client
	cache *Cache
	owner string

	mu          sync.Mutex
	pending     map[int64]bool
	placeholder int64
}

func NewSession(api *Client, cache *Cache, ownerID string) *Session {
	if cache == nil {
		cache = NewCache()
	}
	return &Session{
		api:     api,
		cache:   cache,
		owner:   ownerID,
		pending: make(map[int64]bool),
	}
}

func (s *Session) listKey() Key {
	return Key{Entity: EntityChatList, OwnerID: s.owner}
}

func (s *Session) detailKey(chatID int64) Key {
	return Key{Entity: EntityChat, OwnerID: s.owner, ID: chatID}
}

// nextPlaceholderID hands out -1, -2, and so on, disjoint from the server's
// positive id sequence.
func (s *Session) nextPlaceholderID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeholder--
	return s.placeholder
}

// Chats returns the cached chat list, fetching it on a miss.
func (s *Session) Chats(ctx context.Context) ([]chat.Chat, error) {
	if v, ok := s.cache.Get(s.listKey()); ok {
		return v.([]chat.Chat), nil
	}
	chats, err := s.api.ListChats(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(s.listKey(), chats)
	return chats, nil
}

// CreateChat creates the chat and invalidates the list so the sidebar
// refetches within one round-trip.
func (s *Session) CreateChat(ctx context.Context, title string) (*chat.Chat, error) {
	created, err := s.api.CreateChat(ctx, title)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(s.listKey())
	return created, nil
}

func (s *Session) DeleteChat(ctx context.Context, chatID int64) error {
	if err := s.api.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	s.cache.Invalidate(s.listKey())
	s.cache.Invalidate(s.detailKey(chatID))
	return nil
}

// Open loads a chat with its messages into the cache and returns it.
func (s *Session) Open(ctx context.Context, chatID int64) (ChatDetail, error) {
	if v, ok := s.cache.Get(s.detailKey(chatID)); ok {
		return v.(ChatDetail), nil
	}
	detail, err := s.api.GetChat(ctx, chatID)
	if err != nil {
		return ChatDetail{}, err
	}
	s.cache.Set(s.detailKey(chatID), *detail)
	return *detail, nil
}

// Messages returns the currently displayed message list for a chat: the last
// known server-confirmed state plus any in-flight optimistic entries.
func (s *Session) Messages(chatID int64) []chat.Message {
	v, ok := s.cache.Get(s.detailKey(chatID))
	if !ok {
		return nil
	}
	return v.(ChatDetail).Messages
}

func cloneDetail(d ChatDetail) ChatDetail {
	out := d
	out.Messages = append([]chat.Message(nil), d.Messages...)
	return out
}

// beginSend claims the chat's single in-flight slot and applies the
// optimistic placeholder. It returns the pre-mutation snapshot and whether
// the chat was cached at all.
func (s *Session) beginSend(chatID int64, content string, imageURL *string) (snapshot ChatDetail, hadCache bool, err error) {
	s.mu.Lock()
	if s.pending[chatID] {
		s.mu.Unlock()
		return ChatDetail{}, false, ErrSendInFlight
	}
	s.pending[chatID] = true
	s.mu.Unlock()

	v, ok := s.cache.Get(s.detailKey(chatID))
	if !ok {
		return ChatDetail{}, false, nil
	}
	snapshot = v.(ChatDetail)

	next := cloneDetail(snapshot)
	next.Messages = append(next.Messages, chat.Message{
		ID:        s.nextPlaceholderID(),
		ChatID:    chatID,
		Role:      chat.RoleUser,
		Content:   content,
		ImageURL:  imageURL,
		CreatedAt: time.Now(),
	})
	s.cache.Set(s.detailKey(chatID), next)
	return snapshot, true, nil
}

// settle ends the in-flight send: on failure it restores the pre-send
// snapshot, on success it replaces the cache with the authoritative state.
func (s *Session) settle(ctx context.Context, chatID int64, snapshot ChatDetail, hadCache bool, sendErr error) {
	defer func() {
		s.mu.Lock()
		delete(s.pending, chatID)
		s.mu.Unlock()
	}()

	key := s.detailKey(chatID)
	if sendErr != nil {
		if hadCache {
			s.cache.Set(key, snapshot)
		} else {
			s.cache.Invalidate(key)
		}
		return
	}

	detail, err := s.api.GetChat(ctx, chatID)
	if err != nil {
		// Could not refetch; drop the entry rather than keep optimistic
		// state that the server never confirmed.
		s.cache.Invalidate(key)
		return
	}
	s.cache.Set(key, *detail)
}

// Send submits a message with an optimistic placeholder and settles the
// cache once the round-trip completes. Returns the persisted assistant
// message.
func (s *Session) Send(ctx context.Context, chatID int64, content string, imageURL *string) (*chat.Message, error) {
	snapshot, hadCache, err := s.beginSend(chatID, content, imageURL)
	if err != nil {
		return nil, err
	}

	msg, sendErr := s.api.SendMessage(ctx, chatID, content, imageURL)
	s.settle(ctx, chatID, snapshot, hadCache, sendErr)
	if sendErr != nil {
		return nil, sendErr
	}
	return msg, nil
}

// SendStream is the streaming variant: while fragments arrive, the displayed
// list additionally carries a growing placeholder assistant message, so the
// reply renders live. onUpdate, when non-nil, is invoked with the displayed
// messages after every change.
func (s *Session) SendStream(ctx context.Context, chatID int64, content string, imageURL *string, onUpdate func([]chat.Message)) (*chat.Message, error) {
	snapshot, hadCache, err := s.beginSend(chatID, content, imageURL)
	if err != nil {
		return nil, err
	}

	notify := func() {
		if onUpdate != nil {
			onUpdate(s.Messages(chatID))
		}
	}
	notify()

	key := s.detailKey(chatID)
	assistantID := s.nextPlaceholderID()

	msg, sendErr := s.api.StreamMessage(ctx, chatID, content, imageURL, func(fragment string) {
		v, ok := s.cache.Get(key)
		if !ok {
			return
		}
		next := cloneDetail(v.(ChatDetail))
		n := len(next.Messages)
		if n > 0 && next.Messages[n-1].ID == assistantID {
			next.Messages[n-1].Content += fragment
		} else {
			next.Messages = append(next.Messages, chat.Message{
				ID:        assistantID,
				ChatID:    chatID,
				Role:      chat.RoleAssistant,
				Content:   fragment,
				CreatedAt: time.Now(),
			})
		}
		s.cache.Set(key, next)
		notify()
	})

	s.settle(ctx, chatID, snapshot, hadCache, sendErr)
	notify()
	if sendErr != nil {
		return nil, sendErr
	}
	return msg, nil
}
