package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Cache is a bounded in-process key/value store with LRU eviction and a
// TTL ceiling. It holds recently accepted items for the fast read path;
// durable storage remains the source of truth, so an eviction here loses
// nothing.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	ll         *list.List
	entries    map[string]*list.Element
}

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		ll:         list.New(),
		entries:    make(map[string]*list.Element, maxEntries),
	}
}

// Put inserts or replaces a value. The latest write wins; values are
// swapped whole under the lock, so readers never see a partial entry.
// On overflow the least-recently-used entry is evicted.
func (c *Cache) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Now().Add(c.ttl)

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).value = value
		el.Value.(*entry).expiresAt = expires
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{key: key, value: value, expiresAt: expires})
	c.entries[key] = el

	if c.ll.Len() > c.maxEntries {
		c.removeElement(c.ll.Back())
	}
}

// Get returns the value for key, refreshing its recency. An entry past
// its TTL is a miss even if the sweeper has not reached it yet.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeElement(el)
		return nil, false
	}

	c.ll.MoveToFront(el)
	return e.value, true
}

// Len reports the current number of entries, including any expired ones
// the sweeper has not removed yet.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// StartSweeper reaps TTL-expired entries in the background until ctx is
// cancelled, reclaiming memory for keys that are never read again.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry).expiresAt) {
			c.removeElement(el)
		}
		el = prev
	}
}

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
}
