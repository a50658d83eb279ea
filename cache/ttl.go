package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ShardCount is the number of shards. It is a power of 2 so shard
	// selection is a mask.
	ShardCount = 16

	// DefaultCapacity is the default maximum entries per shard.
	DefaultCapacity = 32

	// DefaultTTL is how long an entry stays fresh by default.
	DefaultTTL = time.Hour

	shardMask = ShardCount - 1
)

// Hasher computes a hash for a key. It selects the shard.
type Hasher[K any] func(K) uint64

// StringHasher computes the FNV-1a hash of a string key.
func StringHasher(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s)) // fnv.Write never returns an error
	return h.Sum64()
}

// Config configures a Cache.
type Config[K any] struct {
	// Capacity is the maximum number of entries per shard.
	Capacity int

	// TTL is how long an entry is served after it was set.
	TTL time.Duration

	// Hasher selects shards. Nil uses StringHasher on string keys; other
	// key types must set it.
	Hasher Hasher[K]

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

// Cache is a thread-safe sharded LRU cache whose entries expire after a
// fixed TTL. Expired entries are dropped lazily on access and by Purge.
type Cache[K comparable, V any] struct {
	shards   [ShardCount]*shard[K, V]
	hasher   Hasher[K]
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64
}

type shard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	lru     *lruList[K]
}

type entry[K comparable, V any] struct {
	value   V
	expires time.Time
	node    *lruNode[K]
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Len       int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
	HitRate   float64
}

// New creates a cache. Zero Capacity and TTL use DefaultCapacity and
// DefaultTTL.
func New[K comparable, V any](cfg Config[K]) *Cache[K, V] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Hasher == nil {
		cfg.Hasher = func(k K) uint64 {
			if s, ok := any(k).(string); ok {
				return StringHasher(s)
			}
			return 0
		}
	}

	c := &Cache[K, V]{
		hasher:   cfg.Hasher,
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard[K, V]{
			entries: make(map[K]*entry[K, V]),
			lru:     newLRUList[K](),
		}
	}
	return c
}

func (c *Cache[K, V]) shardFor(key K) *shard[K, V] {
	return c.shards[c.hasher(key)&shardMask]
}

// Get returns the value for key if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expires) {
		s.lru.Remove(e.node)
		delete(s.entries, key)
		c.expired.Add(1)
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	s.lru.MoveToFront(e.node)
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key with a fresh TTL, evicting the least recently
// used entries of the shard when it is full.
func (c *Cache[K, V]) Set(key K, value V) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if e, ok := s.entries[key]; ok {
		e.value = value
		e.expires = expires
		s.lru.MoveToFront(e.node)
		return
	}

	for s.lru.Len() >= c.capacity {
		oldest, ok := s.lru.RemoveOldest()
		if !ok {
			break
		}
		delete(s.entries, oldest)
		c.evictions.Add(1)
	}
	s.entries[key] = &entry[K, V]{value: value, expires: expires, node: s.lru.PushFront(key)}
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.lru.Remove(e.node)
	delete(s.entries, key)
	return true
}

// Purge drops every expired entry and returns how many were removed.
func (c *Cache[K, V]) Purge() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if !now.Before(e.expires) {
				s.lru.Remove(e.node)
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	c.expired.Add(uint64(removed))
	return removed
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[K]*entry[K, V])
		s.lru.Clear()
		s.mu.Unlock()
	}
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *Cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// TTL returns the configured time-to-live.
func (c *Cache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Stats returns current cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Len:       c.Len(),
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
		HitRate:   rate,
	}
}
