// Package lrucache implements C6: a byte-budgeted, thread-safe LRU
// cache of document.Ref handles, grounded on
// original_source/src/cache/memory_cache.rs's MemoryBoundedLruCache
// (HashMap + VecDeque order, atomic hit/miss/eviction counters),
// re-expressed with container/list in place of VecDeque.
package lrucache

import (
	"container/list"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/imgproxy/imgproxy/internal/document"
)

type entry struct {
	key  string
	ref  *document.Ref
	size int64
}

// Cache is a byte-budgeted LRU keyed by string, valued by a shared
// document.Ref. A single mutex guards the map, the ordering list and
// curBytes; the hit/miss/eviction counters are atomic, but curBytes is
// not, so Stats takes the lock briefly to read it.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = least-recently-used, back = most-recently-used
	maxBytes int64
	curBytes int64

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	logger *slog.Logger
}

// New returns an empty Cache with the given byte budget.
func New(maxBytes int64, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Put admits value under key. A value bigger than the cache's entire
// budget is refused outright. A key that is already present is left
// completely untouched: no size-accounting change, and — per the
// reference behavior this cache models — no LRU-position refresh
// either (see SPEC_FULL.md's open-question decision on P-Get-Refresh
// vs a non-refreshing re-put).
func (c *Cache) Put(key string, ref *document.Ref) bool {
	size := ref.Document().SizeInBytes()
	if size > c.maxBytes {
		c.logger.Warn("lrucache: refusing oversized entry", "key", key, "size", size, "max_bytes", c.maxBytes)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; exists {
		return true
	}

	for c.curBytes+size > c.maxBytes && c.order.Len() > 0 {
		c.evictOldestLocked()
	}

	el := c.order.PushBack(&entry{key: key, ref: ref, size: size})
	c.items[key] = el
	c.curBytes += size
	return true
}

// evictOldestLocked removes the front (least-recently-used) entry.
// Caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	ent := front.Value.(*entry)
	c.order.Remove(front)
	delete(c.items, ent.key)
	c.curBytes -= ent.size
	c.evictions.Add(1)
}

// Get returns the cached Ref for key, moving it to the most-recently-
// used position on a hit.
func (c *Cache) Get(key string) (*document.Ref, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToBack(el)
	c.hits.Add(1)
	return el.Value.(*entry).ref, true
}

// Remove drops key from the cache, if present.
func (c *Cache) Remove(key string) (*document.Ref, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, key)
	c.curBytes -= ent.size
	return ent.ref, true
}

// Clear drops every entry and resets curBytes/evictions to zero. Hit
// and miss counters are left alone; they are lifetime statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.curBytes = 0
	c.evictions.Store(0)
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats is a point-in-time snapshot of the cache's counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	CurBytes  int64
	MaxBytes  int64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	cur := c.curBytes
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		CurBytes:  cur,
		MaxBytes:  c.maxBytes,
	}
}
