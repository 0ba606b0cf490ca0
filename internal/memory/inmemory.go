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

package memory

import (
	"context"
	"sync"
	"time"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tranductrinh/kube-medic/internal/history"
)

var log = logf.Log.WithName("memory")

// defaultJanitorInterval is how often idle threads are swept.
const defaultJanitorInterval = 60 * time.Second

type thread struct {
	mu         sync.Mutex // serializes multi-turn appends and retention
	turns      *history.Ring[Turn]
	lastAccess time.Time
	evicted    bool // removed from the map; callers holding it must look up again
}

// InMemoryStore keeps threads in process memory. Each thread is a ring of
// at most MaxTurns turns, so eviction always drops the oldest first.
// The map lock is held only to find or create a thread; work on one thread
// never blocks another.
type InMemoryStore struct {
	retention Retention
	nowFunc   func() time.Time

	mu      sync.RWMutex
	threads map[string]*thread
}

// NewInMemoryStore creates an InMemoryStore. A non-positive MaxTurns falls
// back to the default.
func NewInMemoryStore(r Retention) *InMemoryStore {
	if r.MaxTurns <= 0 {
		r.MaxTurns = DefaultRetention().MaxTurns
	}
	return &InMemoryStore{
		retention: r,
		nowFunc:   time.Now,
		threads:   make(map[string]*thread),
	}
}

func (s *InMemoryStore) get(threadID string, create bool) *thread {
	s.mu.RLock()
	t, ok := s.threads[threadID]
	s.mu.RUnlock()
	if ok || !create {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok = s.threads[threadID]; ok {
		return t
	}
	t = &thread{turns: history.New[Turn](s.retention.MaxTurns), lastAccess: s.nowFunc()}
	s.threads[threadID] = t
	return t
}

// lock returns the thread locked, looking it up again if the janitor
// evicted it between the map lookup and the lock.
func (s *InMemoryStore) lock(threadID string, create bool) *thread {
	for {
		t := s.get(threadID, create)
		if t == nil {
			return nil
		}
		t.mu.Lock()
		if !t.evicted {
			return t
		}
		t.mu.Unlock()
	}
}

// Turns implements Store.
func (s *InMemoryStore) Turns(_ context.Context, threadID string) ([]Turn, error) {
	if threadID == "" {
		return nil, nil
	}
	t := s.lock(threadID, false)
	if t == nil {
		return nil, nil
	}
	defer t.mu.Unlock()
	t.lastAccess = s.nowFunc()
	s.expireLocked(t)
	return t.turns.Items(), nil
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, threadID string, turns ...Turn) error {
	if threadID == "" || len(turns) == 0 {
		return nil
	}
	t := s.lock(threadID, true)
	defer t.mu.Unlock()

	now := s.nowFunc()
	for _, turn := range turns {
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
		t.turns.Add(turn)
	}
	t.lastAccess = now
	s.expireLocked(t)
	return nil
}

func (s *InMemoryStore) expireLocked(t *thread) {
	if s.retention.MaxAge <= 0 {
		return
	}
	cutoff := s.nowFunc().Add(-s.retention.MaxAge)
	t.turns.DropOldestWhile(func(turn Turn) bool { return turn.CreatedAt.Before(cutoff) })
}

// Delete forgets a thread.
func (s *InMemoryStore) Delete(threadID string) {
	s.mu.Lock()
	delete(s.threads, threadID)
	s.mu.Unlock()
}

// Stats reports thread and turn counts.
func (s *InMemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Backend: "memory", Threads: len(s.threads)}
	for _, t := range s.threads {
		st.Turns += t.turns.Len()
	}
	return st
}

// Run evicts threads idle for longer than MaxAge until ctx is done. It is a
// no-op loop when MaxAge is zero.
func (s *InMemoryStore) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultJanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.evictIdle(); n > 0 {
				log.V(1).Info("Evicted idle threads", "count", n)
			}
		}
	}
}

// evictIdle removes idle threads. The first pass finds candidates under the
// read lock; the second re-checks each one under its own lock, since an
// Append may have touched it in between, and marks removed threads evicted.
func (s *InMemoryStore) evictIdle() int {
	if s.retention.MaxAge <= 0 {
		return 0
	}
	now := s.nowFunc()

	var idle []string
	s.mu.RLock()
	for id, t := range s.threads {
		t.mu.Lock()
		if now.Sub(t.lastAccess) > s.retention.MaxAge {
			idle = append(idle, id)
		}
		t.mu.Unlock()
	}
	s.mu.RUnlock()

	if len(idle) == 0 {
		return 0
	}
	evicted := 0
	s.mu.Lock()
	for _, id := range idle {
		t, ok := s.threads[id]
		if !ok {
			continue
		}
		t.mu.Lock()
		if now.Sub(t.lastAccess) > s.retention.MaxAge {
			t.evicted = true
			delete(s.threads, id)
			evicted++
		}
		t.mu.Unlock()
	}
	s.mu.Unlock()
	return evicted
}
