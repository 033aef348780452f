// ABOUTME: TTL- and size-bounded set of recently delivered command keys.
// ABOUTME: Oldest entries are evicted first; expired entries are swept in the background.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used by the orchestrator.
const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 100_000
)

// CommandKey builds the cache key for one command delivered to one agent
// stream. A reconnected agent has a new session, so a command re-sent after
// its queued copy was discarded is delivered again.
func CommandKey(target, session, commandID string) string {
	return target + "|" + session + "|" + commandID
}

type entry struct {
	key    string
	marked time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // *entry, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Cache and starts its sweeper. Call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// CheckAndMark reports whether key was delivered within the TTL. If not, it
// marks key as delivered now. The check and the mark happen under one lock.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.index[key]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.marked) < c.ttl {
			return true
		}
		e.marked = now
		c.order.MoveToBack(el)
		return false
	}

	if len(c.index) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.index, front.Value.(*entry).key)
		}
	}
	c.index[key] = c.order.PushBack(&entry{key: key, marked: now})
	return false
}

// Forget removes key, allowing a later delivery of the same command.
// Used when a marked push could not actually be enqueued.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.order.Remove(el)
		delete(c.index, key)
	}
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired entries. Entries are ordered by mark time, so it stops
// at the first live one.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.marked) < c.ttl {
			return
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.index, e.key)
		el = next
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
