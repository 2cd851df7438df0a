// Package lrucache implements the small block cache the positioned-read
// fallback reader uses on platforms without mmap.
// Adapted from a vector-search LRU block cache:
// container/list + map, capacity tracked in bytes, hit/miss counters --
// simplified to drop the cross-cache resource controller (this cache is
// the only consumer of its budget, sized to hold a handful of disk
// groups rather than a whole engine's memory budget) and to key pages
// by a plain int64 instead of an opaque cache key (the positioned
// reader passes each read's byte offset).
package lrucache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

type entry struct {
	block int64
	data  []byte
}

// Cache is an LRU cache of fixed-size byte blocks, bounded by total
// byte capacity rather than item count.
type Cache struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[int64]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

// New returns an empty cache bounded to capacityBytes.
func New(capacityBytes int64) *Cache {
	return &Cache{
		capacity:  capacityBytes,
		items:     make(map[int64]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached bytes for block, if present.
func (c *Cache) Get(block int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[block]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		return el.Value.(*entry).data, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches data for block, evicting the least-recently-used blocks
// as needed to stay within capacity.
func (c *Cache) Set(block int64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[block]; ok {
		c.evictList.MoveToFront(el)
		old := el.Value.(*entry)
		c.size += int64(len(data)) - int64(len(old.data))
		old.data = data
		c.evictLocked()
		return
	}

	itemSize := int64(len(data))
	if itemSize > c.capacity {
		return
	}
	for c.size+itemSize > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeElementLocked(back)
	}

	el := c.evictList.PushFront(&entry{block: block, data: data})
	c.items[block] = el
	c.size += itemSize
}

func (c *Cache) evictLocked() {
	for c.size > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			return
		}
		c.removeElementLocked(back)
	}
}

func (c *Cache) removeElementLocked(el *list.Element) {
	c.evictList.Remove(el)
	ent := el.Value.(*entry)
	delete(c.items, ent.block)
	c.size -= int64(len(ent.data))
}

// Stats returns cumulative hit/miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
