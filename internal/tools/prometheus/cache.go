/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package prometheus

import (
	"container/list"
	"sync"
	"time"
)

// Cache is an LRU cache whose entries also expire after a fixed TTL. A nil
// or disabled Cache misses on every Get.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
	nowFunc  func() time.Time
}

type cacheEntry[V any] struct {
	key       string
	value     V
	createdAt time.Time
}

// NewCache creates a cache. It returns nil, a valid always-miss cache, when
// capacity or ttl is not positive.
func NewCache[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 || ttl <= 0 {
		return nil
	}
	return &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		nowFunc:  time.Now,
	}
}

// Get returns the value for key unless it is missing or expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		cacheMisses.Inc()
		return zero, false
	}
	entry := elem.Value.(*cacheEntry[V])
	if c.nowFunc().Sub(entry.createdAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.items, key)
		cacheMisses.Inc()
		return zero, false
	}
	c.order.MoveToFront(elem)
	cacheHits.Inc()
	return entry.value, true
}

// Put stores value, evicting the least recently used entry when full.
func (c *Cache[V]) Put(key string, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry[V])
		entry.value = value
		entry.createdAt = c.nowFunc()
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry[V]).key)
		}
	}
	c.items[key] = c.order.PushFront(&cacheEntry[V]{key: key, value: value, createdAt: c.nowFunc()})
}

// Clear removes every entry and returns how many there were.
func (c *Cache[V]) Clear() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.order.Len()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return n
}

// Len returns the number of cached entries, including expired ones not yet
// evicted.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
