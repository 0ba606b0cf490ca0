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
	"context"
	"errors"
	"time"

	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("ai")

const (
	defaultFailureThreshold = 5
	defaultResetTimeout     = 60 * time.Second
)

// GuardedProvider wraps a Provider with a circuit breaker, an optional token
// budget and call metrics. It implements Provider.
type GuardedProvider struct {
	provider Provider
	breaker  *CircuitBreaker
	budget   *Budget
}

// NewGuardedProvider wraps p. budget may be nil. A nil breaker gets the
// default threshold and reset timeout.
func NewGuardedProvider(p Provider, breaker *CircuitBreaker, budget *Budget) *GuardedProvider {
	if p == nil {
		p = NewNoOpProvider()
	}
	if breaker == nil {
		name := p.Name()
		breaker = NewCircuitBreaker(defaultFailureThreshold, defaultResetTimeout,
			WithOnStateChange(func(from, to CircuitState) {
				log.Info("AI circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
				recordCircuitState(name, to)
			}))
	}
	return &GuardedProvider{provider: p, breaker: breaker, budget: budget}
}

// Name returns the wrapped provider's name.
func (g *GuardedProvider) Name() string {
	return g.provider.Name()
}

// Available reports whether the wrapped provider is configured and the
// circuit is not open.
func (g *GuardedProvider) Available() bool {
	return g.provider.Available() && g.breaker.State() != CircuitOpen
}

// Budget returns the token budget, or nil when unlimited.
func (g *GuardedProvider) Budget() *Budget {
	return g.budget
}

// Complete calls the wrapped provider unless the circuit is open or the
// budget is spent.
func (g *GuardedProvider) Complete(ctx context.Context, request Request) (*Response, error) {
	name := g.provider.Name()
	if err := g.budget.Allow(); err != nil {
		RecordAICall(name, callResultBudget, 0, 0)
		return nil, err
	}
	if !g.breaker.Allow() {
		RecordAICall(name, callResultCircuitOpen, 0, 0)
		return nil, ErrCircuitOpen
	}

	start := time.Now()
	resp, err := g.provider.Complete(ctx, request)
	elapsed := time.Since(start)
	if err != nil {
		// A caller-side cancellation says nothing about provider health.
		if errors.Is(err, context.Canceled) {
			g.breaker.Release()
		} else {
			g.breaker.RecordFailure()
		}
		RecordAICall(name, callResultError, 0, elapsed)
		logf.FromContext(ctx).V(1).Info("AI call failed", "provider", name, "duration", elapsed, "error", err.Error())
		return nil, err
	}

	g.breaker.RecordSuccess()
	g.budget.RecordUsage(resp.TokensUsed)
	UpdateBudgetMetrics(g.budget)
	RecordAICall(name, callResultSuccess, resp.TokensUsed, elapsed)
	return resp, nil
}
