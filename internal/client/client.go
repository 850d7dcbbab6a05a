package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joojle/joojle-chat/internal/chat"
)

// Client is the typed HTTP wrapper over the chat API. It knows nothing about
// caching or optimistic state; Session layers that on top.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// APIError carries the server's envelope for any non-2xx answer.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d code %d: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ChatDetail mirrors the GET /api/chats/{id} payload.
type ChatDetail struct {
	Chat     chat.Chat      `json:"chat"`
	Messages []chat.Message `json:"messages"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	// One id per request so client and server logs line up.
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) ListChats(ctx context.Context) ([]chat.Chat, error) {
	var chats []chat.Chat
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *Client) CreateChat(ctx context.Context, title string) (*chat.Chat, error) {
	var created chat.Chat
	if err := c.do(ctx, http.MethodPost, "/api/chats", map[string]string{"title": title}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) GetChat(ctx context.Context, id int64) (*ChatDetail, error) {
	var detail ChatDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/chats/%d", id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) DeleteChat(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chats/%d", id), nil, nil)
}

type sendMessageReq struct {
	Content  string  `json:"content"`
	ImageURL *string `json:"imageUrl,omitempty"`
}

// SendMessage uses the non-streaming mode and returns the persisted
// assistant message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, content string, imageURL *string) (*chat.Message, error) {
	var msg chat.Message
	path := fmt.Sprintf("/api/chats/%d/messages?stream=false", chatID)
	if err := c.do(ctx, http.MethodPost, path, sendMessageReq{Content: content, ImageURL: imageURL}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type streamPayload struct {
	Content string        `json:"content"`
	Done    bool          `json:"done"`
	Message *chat.Message `json:"message"`
	Error   string        `json:"error"`
}

// StreamMessage sends in streaming mode, invoking onFragment for every
// assistant text fragment as it arrives, and returns the final persisted
// assistant message.
func (c *Client) StreamMessage(ctx context.Context, chatID int64, content string, imageURL *string, onFragment func(string)) (*chat.Message, error) {
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", chatID),
		sendMessageReq{Content: content, ImageURL: imageURL})
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Pre-stream failures come back as plain JSON with a real status code.
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
		}
		var msg chat.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	}

	sc := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		var p streamPayload
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &p); err != nil {
			return nil, err
		}
		switch {
		case p.Error != "":
			return nil, &APIError{Status: resp.StatusCode, Message: p.Error}
		case p.Done:
			return p.Message, nil
		case p.Content != "":
			if onFragment != nil {
				onFragment(p.Content)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("stream ended without done marker")
}
