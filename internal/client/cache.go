package client

import "sync"

// Entities addressable in the cache.
const (
	EntityChatList = "chat_list"
	EntityChat     = "chat"
)

// Key addresses one cache entry. The schema is (entity, ownerID, id); list
// entries leave ID zero.
type Key struct {
	Entity  string
	OwnerID string
	ID      int64
}

// Cache is the client-side query cache: it only ever holds server-confirmed
// state, except while an optimistic mutation is in flight (the mutator keeps
// the pre-mutation snapshot and restores it on failure). No ambient global;
// a handle is passed to whoever needs it.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]any
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Key]any)}
}

func (c *Cache) Get(k Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[k]
	return v, ok
}

func (c *Cache) Set(k Key, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = v
}

func (c *Cache) Invalidate(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}
