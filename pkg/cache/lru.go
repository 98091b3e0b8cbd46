package cache

import (
	"container/list"
	"sync"
	"time"
)

type lruEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time // zero when the cache has no TTL
}

func (e *lruEntry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// lruCache evicts the least recently used entry once maxSize is exceeded and
// drops entries older than ttl, lazily on Get and periodically in the
// background.
type lruCache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newLRUCache[V any](cfg Config, m *cacheMetrics, evictFn EvictCallback[V]) *lruCache[V] {
	c := &lruCache[V]{
		maxSize:  cfg.MaxSize,
		ttl:      cfg.TTL,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		stats:    NewStatistics(),
		metrics:  m,
		evictFn:  evictFn,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cfg.TTL > 0 {
		interval := cfg.CleanupInterval
		if interval <= 0 {
			interval = cfg.TTL
		}
		go c.sweep(interval)
	} else {
		close(c.done)
	}
	return c
}

// Get implements Cache.
func (c *lruCache[V]) Get(key string) (V, bool) {
	var value V
	var evicted *lruEntry[V]

	c.mu.Lock()
	element, ok := c.items[key]
	if ok {
		entry := element.Value.(*lruEntry[V])
		if entry.expired(time.Now()) {
			c.remove(element)
			evicted = entry
			ok = false
		} else {
			c.order.MoveToFront(element)
			value = entry.value
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if evicted != nil {
		c.evicted(evicted, size)
	}
	if !ok {
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return value, false
	}
	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return value, true
}

// Set implements Cache.
func (c *lruCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	var evicted *lruEntry[V]
	c.mu.Lock()
	element, exists := c.items[key]
	if exists {
		entry := element.Value.(*lruEntry[V])
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(element)
	} else {
		c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value, expiresAt: expiresAt})
		if len(c.items) > c.maxSize {
			oldest := c.order.Back()
			evicted = oldest.Value.(*lruEntry[V])
			c.remove(oldest)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}
	if evicted != nil {
		c.evicted(evicted, size)
	}
	return !exists, nil
}

// Delete implements Cache.
func (c *lruCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	element, exists := c.items[key]
	if exists {
		c.remove(element)
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			c.metrics.recordDelete()
			c.metrics.updateSize(size)
		}
	}
	return exists, nil
}

// Size implements Cache.
func (c *lruCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats implements Cache.
func (c *lruCache[V]) Stats() *Statistics {
	return c.stats
}

// Close implements Cache.
func (c *lruCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })
	<-c.done
	if c.metrics != nil {
		c.metrics.unregister()
	}
	return nil
}

// remove unlinks element; the caller holds mu.
func (c *lruCache[V]) remove(element *list.Element) {
	entry := element.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
}

func (c *lruCache[V]) evicted(entry *lruEntry[V], size int) {
	c.stats.Eviction()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordEviction()
		c.metrics.updateSize(size)
	}
	if c.evictFn != nil {
		c.evictFn(entry.key, entry.value)
	}
}

func (c *lruCache[V]) sweep(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *lruCache[V]) removeExpired() {
	now := time.Now()
	var expired []*lruEntry[V]

	c.mu.Lock()
	for element := c.order.Back(); element != nil; {
		prev := element.Prev()
		if entry := element.Value.(*lruEntry[V]); entry.expired(now) {
			expired = append(expired, entry)
			c.remove(element)
		}
		element = prev
	}
	size := len(c.items)
	c.mu.Unlock()

	for _, entry := range expired {
		c.evicted(entry, size)
	}
}
