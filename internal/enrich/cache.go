// ABOUTME: Session-scoped sender profile cache keyed by user id
// ABOUTME: Additive by default; an optional cap evicts the oldest insert first

package enrich

import (
	"container/list"
	"sync"

	"github.com/lavoro/lavoro-chat/internal/chat"
)

type cacheEntry struct {
	display chat.UserDisplay
	element *list.Element
}

// Cache maps user ids to resolved displays. It is safe for concurrent use;
// the last writer for an id wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // ids in insertion order, oldest at front
	maxSize int
}

// NewCache creates an empty cache. maxSize <= 0 means unbounded.
func NewCache(maxSize int) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Get returns the cached display for id.
func (c *Cache) Get(id string) (chat.UserDisplay, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return chat.UserDisplay{}, false
	}
	return entry.display, true
}

// Put stores d under id, replacing any previous value. Replacing does not
// refresh the entry's eviction position.
func (c *Cache) Put(id string, d chat.UserDisplay) {
	if id == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[id]; ok {
		entry.display = d
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(id)
	c.entries[id] = &cacheEntry{display: d, element: elem}
}

// evictOldest must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, id)
}

// Len returns the number of cached ids.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the cache contents.
func (c *Cache) Snapshot() map[string]chat.UserDisplay {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]chat.UserDisplay, len(c.entries))
	for id, entry := range c.entries {
		out[id] = entry.display
	}
	return out
}
