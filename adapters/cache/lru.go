// Package cache provides an in-process, bounded core.ImageCache.
package cache

import (
	"container/list"
	"sync"

	"github.com/kestrelimg/imgload/core"
)

// LRU is a fixed-capacity, least-recently-used ImageCache. Safe for
// concurrent use; the orchestrator may call Get/Set from its serial
// context while a caller reads cache state from any other goroutine.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[core.CacheKey]*list.Element
}

type entry struct {
	key core.CacheKey
	img *core.Image
}

// NewLRU returns an LRU bounded to capacity entries. capacity <= 0 means
// unbounded.
func NewLRU(capacity int) *LRU {
	return &LRU{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[core.CacheKey]*list.Element),
	}
}

func (c *LRU) Get(key core.CacheKey) (*core.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).img, true
}

func (c *LRU) Set(key core.CacheKey, img *core.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*entry).img = img
		return
	}

	el := c.ll.PushFront(&entry{key: key, img: img})
	c.items[key] = el

	if c.capacity > 0 && c.ll.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *LRU) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

// Len returns the number of entries currently cached.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

var _ core.ImageCache = (*LRU)(nil)
