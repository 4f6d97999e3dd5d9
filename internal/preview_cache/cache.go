// Package preview_cache keeps decoded image previews in a small LRU so
// concurrent sessions over the same image share one copy.
package preview_cache

import (
	"container/list"
	"image"
	"sync"
	"sync/atomic"
)

type entry struct {
	key     string
	preview *image.RGBA
}

// Cache is a count-bounded LRU of decoded previews keyed by image ID.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lruList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache holding at most maxSize previews.
func New(maxSize int) *Cache {
	return &Cache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lruList: list.New(),
	}
}

// Get returns the preview for key and marks it most recently used.
func (c *Cache) Get(key string) (*image.RGBA, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.lruList.MoveToFront(elem)
	c.hits.Add(1)
	return elem.Value.(*entry).preview, true
}

// Set stores the preview for key, evicting the least recently used entry
// once the cache is full.
func (c *Cache) Set(key string, preview *image.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry).preview = preview
		c.lruList.MoveToFront(elem)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		oldest := c.lruList.Back()
		if oldest != nil {
			delete(c.items, oldest.Value.(*entry).key)
			c.lruList.Remove(oldest)
		}
	}

	ent := &entry{key: key, preview: preview}
	c.items[key] = c.lruList.PushFront(ent)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lruList = list.New()
}
