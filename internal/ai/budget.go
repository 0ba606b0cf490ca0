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

package ai

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned when a token budget window is used up.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// BudgetWindow defines a time-bounded token limit.
type BudgetWindow struct {
	Name     string
	Duration time.Duration
	Limit    int
}

type windowUsage struct {
	tokens    int
	startedAt time.Time
}

// Budget tracks token usage across one or more time windows. A nil *Budget
// allows everything.
type Budget struct {
	mu      sync.Mutex
	windows []BudgetWindow
	usage   []windowUsage
	nowFunc func() time.Time
}

// NewBudget creates a Budget from the given windows. Pass nil/empty for no limits.
func NewBudget(windows []BudgetWindow) *Budget {
	if len(windows) == 0 {
		return nil
	}
	b := &Budget{
		windows: windows,
		usage:   make([]windowUsage, len(windows)),
		nowFunc: time.Now,
	}
	now := b.nowFunc()
	for i := range b.usage {
		b.usage[i].startedAt = now
	}
	return b
}

// DailyBudget returns a single 24h window, or nil when limit <= 0.
func DailyBudget(limit int) *Budget {
	if limit <= 0 {
		return nil
	}
	return NewBudget([]BudgetWindow{{Name: "daily", Duration: 24 * time.Hour, Limit: limit}})
}

// Allow reports whether every window still has tokens left. Token counts are
// only known after a call, so admission is checked against what is already
// spent.
func (b *Budget) Allow() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	for i, w := range b.windows {
		if b.usage[i].tokens >= w.Limit {
			return fmt.Errorf("%w: %s window (%d/%d tokens)", ErrBudgetExceeded, w.Name, b.usage[i].tokens, w.Limit)
		}
	}
	return nil
}

// RecordUsage records token consumption, resetting expired windows.
func (b *Budget) RecordUsage(tokens int) {
	if b == nil || tokens <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	for i := range b.usage {
		b.usage[i].tokens += tokens
	}
}

// rollLocked resets expired windows. Caller MUST hold b.mu.
func (b *Budget) rollLocked() {
	now := b.nowFunc()
	for i, w := range b.windows {
		if now.Sub(b.usage[i].startedAt) >= w.Duration {
			b.usage[i] = windowUsage{startedAt: now}
		}
	}
}

// WindowUsage reports current usage for a single budget window.
type WindowUsage struct {
	Name  string `json:"name"`
	Limit int    `json:"limit"`
	Used  int    `json:"used"`
}

// GetUsage returns current usage for each window (for metrics).
func (b *Budget) GetUsage() []WindowUsage {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	result := make([]WindowUsage, len(b.windows))
	for i, w := range b.windows {
		result[i] = WindowUsage{Name: w.Name, Limit: w.Limit, Used: b.usage[i].tokens}
	}
	return result
}
