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
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewCircuitBreaker(threshold, time.Minute, WithNowFunc(clock.Now)), clock
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Errorf("after 2 failures: state = %s, want closed", cb.State())
	}
	if !cb.Allow() {
		t.Error("Allow() = false below threshold")
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)

	for range 3 {
		cb.RecordFailure()
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}
	if cb.Allow() {
		t.Error("Allow() = true while open")
	}
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	tests := []struct {
		name      string
		trialOK   bool
		wantState CircuitState
	}{
		{name: "trial success closes", trialOK: true, wantState: CircuitClosed},
		{name: "trial failure re-opens", trialOK: false, wantState: CircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(1)
			cb.RecordFailure()

			clock.Advance(61 * time.Second)
			if !cb.Allow() {
				t.Fatal("Allow() = false after reset timeout, want a trial call")
			}
			if cb.State() != CircuitHalfOpen {
				t.Fatalf("state = %s, want half-open", cb.State())
			}
			if cb.Allow() {
				t.Error("second Allow() in half-open = true, want only one trial call")
			}

			if tt.trialOK {
				cb.RecordSuccess()
			} else {
				cb.RecordFailure()
			}
			if cb.State() != tt.wantState {
				t.Errorf("state = %s, want %s", cb.State(), tt.wantState)
			}
		})
	}
}

func TestCircuitBreaker_Release(t *testing.T) {
	cb, clock := newTestBreaker(1)

	cb.Release()
	if cb.State() != CircuitClosed {
		t.Fatalf("Release() on a closed circuit changed state to %s", cb.State())
	}

	cb.RecordFailure()
	clock.Advance(61 * time.Second)
	if !cb.Allow() {
		t.Fatal("Allow() = false after reset timeout, want a trial call")
	}
	cb.Release()
	if cb.State() != CircuitOpen {
		t.Fatalf("state after Release() = %s, want open", cb.State())
	}
	if !cb.Allow() {
		t.Error("Allow() after a released trial call = false, want an immediate new one")
	}
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cb, _ := newTestBreaker(3)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want closed (success resets the count)", cb.State())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	var transitions []string
	cb := NewCircuitBreaker(1, time.Second, WithNowFunc(clock.Now),
		WithOnStateChange(func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}))

	cb.RecordFailure()
	clock.Advance(2 * time.Second)
	cb.Allow()
	cb.RecordSuccess()

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(100, time.Minute)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			if cb.Allow() {
				if i%2 == 0 {
					cb.RecordFailure()
				} else {
					cb.RecordSuccess()
				}
			}
		})
	}
	wg.Wait()
	_ = cb.State()
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
