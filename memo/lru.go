package memo

import (
	"container/list"
	"sync"
	"time"
)

// lruCache is the in-memory tier: strict LRU with a maximum entry count and
// an independent TTL. Owned by the Scheduler instance, never a package-level
// singleton, so tests construct their own.
type lruCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	timeNow func() time.Time
}

type lruEntry struct {
	key      string
	value    string
	cachedAt time.Time
}

func newLRUCache(max int, ttl time.Duration, timeNow func() time.Time) *lruCache {
	if max <= 0 {
		max = 512
	}
	if timeNow == nil {
		timeNow = time.Now
	}
	return &lruCache{
		max:     max,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		timeNow: timeNow,
	}
}

func (c *lruCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	entry := el.Value.(*lruEntry)

	if c.ttl > 0 && c.timeNow().After(entry.cachedAt.Add(c.ttl)) {
		c.order.Remove(el)
		delete(c.entries, key)
		return "", false
	}

	c.order.MoveToFront(el)
	return entry.value, true
}

func (c *lruCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*lruEntry)
		entry.value = value
		entry.cachedAt = c.timeNow()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&lruEntry{key: key, value: value, cachedAt: c.timeNow()})
	c.entries[key] = el

	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
