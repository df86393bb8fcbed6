package tgrender

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Default in-memory cache bounds.
const (
	DefaultCacheEntries = 512
	DefaultCacheBytes   = 64 << 20 // 64 MiB of artifact bytes
)

// Store is the durable cache tier boundary, implemented by an external
// persistent collaborator (see internal/sqlitestore). The dispatcher
// assumes only read-after-write visibility for its own writes, never
// transactional semantics.
type Store interface {
	// Get returns the artifact for a fingerprint, or ok=false when absent.
	Get(ctx context.Context, fp Fingerprint) (data []byte, ok bool, err error)

	// Put stores an artifact tagged with the cache generation that
	// produced it. Implementations must reject writes whose generation is
	// older than the last Clear.
	Put(ctx context.Context, fp Fingerprint, data []byte, generation uint64) error

	// Clear removes all entries and records the new current generation.
	Clear(ctx context.Context, generation uint64) error
}

// CacheEntry is one resolved artifact held by the in-memory tier.
// Entries are immutable after creation.
type CacheEntry struct {
	Fingerprint Fingerprint
	Artifact    []byte
	CreatedAt   time.Time
	SizeBytes   int
}

// MemoryCache is the bounded in-memory fast path: an LRU keyed by
// fingerprint, bounded by entry count and total artifact bytes. It only
// ever holds resolved entries, so eviction cannot disturb in-flight work.
type MemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	curBytes   int64
	ll         *list.List // front = most recently used
	index      map[Fingerprint]*list.Element
}

// NewMemoryCache creates a cache bounded by maxEntries and maxBytes.
// Non-positive bounds fall back to the defaults.
func NewMemoryCache(maxEntries int, maxBytes int64) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	return &MemoryCache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		ll:         list.New(),
		index:      make(map[Fingerprint]*list.Element),
	}
}

// Get returns the cached artifact and marks the entry recently used.
func (c *MemoryCache) Get(fp Fingerprint) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[fp]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*CacheEntry).Artifact, true
}

// Put inserts a resolved artifact, evicting least-recently-used entries
// while either bound is exceeded. Re-inserting an existing fingerprint is
// a no-op: entries are immutable.
func (c *MemoryCache) Put(fp Fingerprint, artifact []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[fp]; ok {
		return
	}
	entry := &CacheEntry{
		Fingerprint: fp,
		Artifact:    artifact,
		CreatedAt:   time.Now(),
		SizeBytes:   len(artifact),
	}
	c.index[fp] = c.ll.PushFront(entry)
	c.curBytes += int64(entry.SizeBytes)

	for c.ll.Len() > c.maxEntries || c.curBytes > c.maxBytes {
		oldest := c.ll.Back()
		if oldest == nil || oldest == c.ll.Front() {
			break // never evict the entry just inserted
		}
		c.removeElement(oldest)
	}
}

// Clear drops all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.index = make(map[Fingerprint]*list.Element)
	c.curBytes = 0
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// SizeBytes returns the total artifact bytes currently held.
func (c *MemoryCache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

func (c *MemoryCache) removeElement(el *list.Element) {
	entry := el.Value.(*CacheEntry)
	c.ll.Remove(el)
	delete(c.index, entry.Fingerprint)
	c.curBytes -= int64(entry.SizeBytes)
}
