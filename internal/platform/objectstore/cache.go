package objectstore

import (
	"container/list"
	"sync"
)

// blobCache is a least-recently-used cache bounded by the total size of its
// values. Values larger than an eighth of the budget are never kept.
type blobCache struct {
	mu      sync.Mutex
	max     int64
	used    int64
	order   *list.List
	entries map[string]*list.Element
}

type blobEntry struct {
	key   string
	value string
}

func newBlobCache(maxBytes int64) *blobCache {
	return &blobCache{max: maxBytes, order: list.New(), entries: make(map[string]*list.Element)}
}

func (c *blobCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*blobEntry).value, true
}

func (c *blobCache) put(key, value string) {
	size := int64(len(value))
	if size > c.max/8 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&blobEntry{key: key, value: value})
	c.used += size
	for c.used > c.max {
		oldest := c.order.Back()
		e := oldest.Value.(*blobEntry)
		c.order.Remove(oldest)
		delete(c.entries, e.key)
		c.used -= int64(len(e.value))
	}
}

func (c *blobCache) size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
