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

// Package history provides a bounded, ordered buffer that evicts its oldest
// entries first.
package history

import (
	"sync"
)

// Ring is a fixed-capacity circular buffer. Adding to a full ring
// overwrites the oldest entry. Remaining entries never change order.
type Ring[T any] struct {
	mu       sync.RWMutex
	buf      []T
	capacity int
	head     int // next write position
	count    int
}

// New creates a Ring with the given capacity (minimum 1).
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Add inserts an entry, overwriting the oldest if full. It returns the
// evicted entry, if any.
func (r *Ring[T]) Add(v T) (evicted T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == r.capacity {
		evicted, ok = r.buf[r.head], true
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
	return evicted, ok
}

// Latest returns the most recently added entry.
func (r *Ring[T]) Latest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.buf[(r.head-1+r.capacity)%r.capacity], true
}

// Last returns the last n entries in insertion order.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLocked(n)
}

// Items returns every entry, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLocked(r.count)
}

func (r *Ring[T]) lastLocked(n int) []T {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	result := make([]T, n)
	start := (r.head - n + r.capacity) % r.capacity
	for i := range n {
		result[i] = r.buf[(start+i)%r.capacity]
	}
	return result
}

// DropOldestWhile removes entries from the old end while pred holds and
// returns how many were removed.
func (r *Ring[T]) DropOldestWhile(pred func(T) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	dropped := 0
	for r.count > 0 {
		tail := (r.head - r.count + r.capacity) % r.capacity
		if !pred(r.buf[tail]) {
			break
		}
		r.buf[tail] = zero
		r.count--
		dropped++
	}
	return dropped
}

// RemoveAt removes the i-th entry (0 = oldest) and reports whether it
// existed.
func (r *Ring[T]) RemoveAt(i int) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if i < 0 || i >= r.count {
		return zero, false
	}
	items := r.lastLocked(r.count)
	removed := items[i]
	items = append(items[:i], items[i+1:]...)

	clear(r.buf)
	copy(r.buf, items)
	r.count = len(items)
	r.head = r.count % r.capacity
	return removed, true
}

// Clear removes every entry.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.head, r.count = 0, 0
}

// Len returns the current number of entries.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}
