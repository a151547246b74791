package agent

import (
	"container/list"
	"sync"
	"time"

	"github.com/asktennis/asktennis/internal/models"
)

type cacheEntry struct {
	key      string
	value    models.Answer
	storedAt time.Time
}

// QueryCache is a bounded answer cache. When full it evicts the entry that
// was inserted longest ago; reads do not refresh position. Entries older
// than ttl are dropped on read.
type QueryCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = oldest insertion
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	if capacity < 1 {
		capacity = 1
	}
	return &QueryCache{
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// CacheKey combines the normalized question with its query type and data
// source tag.
func CacheKey(normalized string, t models.QueryType, sourceTag string) string {
	return string(t) + "|" + sourceTag + "|" + normalized
}

func (c *QueryCache) Get(key string) (models.Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return models.Answer{}, false
	}
	e := el.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return models.Answer{}, false
	}
	c.hits++
	return e.value, true
}

// Put inserts or replaces key. A replaced key counts as a fresh insertion.
func (c *QueryCache) Put(key string, a models.Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, value: a, storedAt: c.now()})

	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions++
	}
}

func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *QueryCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := models.CacheStats{
		Entries:   c.order.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		TTL:       c.ttl.String(),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
