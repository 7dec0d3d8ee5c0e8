// Package cache holds the response cache used for detail lookups: a bounded,
// TTL-aware LRU kept in process, an optional Redis tier shared between
// processes, and the key scheme both tiers use.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/mfenderov/knowra/internal/clock"
)

// Reference sizing for the detail cache.
const (
	DefaultMaxEntries = 1000
	DefaultMaxAge     = 24 * time.Hour
)

type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// LRU is a fixed-capacity least-recently-used cache whose entries also expire
// after maxAge. Safe for concurrent use.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	maxAge  time.Duration
	order   *list.List // front = most recently used
	items   map[string]*list.Element
	clock   clock.Clock
}

// NewLRU creates an LRU. A nil clock means wall time.
func NewLRU[V any](maxSize int, maxAge time.Duration, c clock.Clock) *LRU[V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if c == nil {
		c = clock.Real{}
	}
	return &LRU[V]{
		maxSize: maxSize,
		maxAge:  maxAge,
		order:   list.New(),
		items:   make(map[string]*list.Element, maxSize),
		clock:   c,
	}
}

// Get returns the value for key and promotes it to most recently used.
// Expired entries are evicted and reported as absent.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := el.Value.(*entry[V])
	if c.clock.Now().Sub(e.storedAt) > c.maxAge {
		c.removeElement(el)
		return zero, false
	}

	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key at the most recently used position, evicting
// the least recently used entry when the cache is full.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.storedAt = now
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, storedAt: now})
}

// Delete removes key if present.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

func (c *LRU[V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}
