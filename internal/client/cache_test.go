package client

import "testing"

func TestCacheScopesByOwnerAndID(t *testing.T) {
	c := NewCache()

	alice := Key{Entity: EntityChat, OwnerID: "alice", ID: 1}
	bob := Key{Entity: EntityChat, OwnerID: "bob", ID: 1}

	c.Set(alice, "alice's chat")
	if _, ok := c.Get(bob); ok {
		t.Fatal("entry leaked across owners")
	}
	v, ok := c.Get(alice)
	if !ok || v != "alice's chat" {
		t.Fatalf("get = %v, %v", v, ok)
	}

	c.Invalidate(alice)
	if _, ok := c.Get(alice); ok {
		t.Fatal("entry survived invalidation")
	}
}

func TestCacheListAndDetailAreDistinct(t *testing.T) {
	c := NewCache()

	list := Key{Entity: EntityChatList, OwnerID: "alice"}
	detail := Key{Entity: EntityChat, OwnerID: "alice", ID: 7}

	c.Set(list, []int{1, 2})
	c.Set(detail, "detail")

	c.Invalidate(list)
	if _, ok := c.Get(detail); !ok {
		t.Fatal("detail entry invalidated alongside the list")
	}
}
