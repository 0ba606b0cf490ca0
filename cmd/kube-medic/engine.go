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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/tranductrinh/kube-medic/internal/agent"
	"github.com/tranductrinh/kube-medic/internal/ai"
	"github.com/tranductrinh/kube-medic/internal/config"
	"github.com/tranductrinh/kube-medic/internal/memory"
	"github.com/tranductrinh/kube-medic/internal/notifier"
	"github.com/tranductrinh/kube-medic/internal/specialists"
	"github.com/tranductrinh/kube-medic/internal/supervisor"
	"github.com/tranductrinh/kube-medic/internal/tools/kubernetes"
	"github.com/tranductrinh/kube-medic/internal/tools/network"
	"github.com/tranductrinh/kube-medic/internal/tools/prometheus"
)

// engine is everything a question needs: the guarded model provider, the
// conversation store and the supervisor over the configured specialists.
type engine struct {
	provider   ai.Provider
	store      memory.Store
	memStats   *memory.InMemoryStore // nil for redis
	supervisor *supervisor.Supervisor
	email      *notifier.EmailNotifier // nil when email is not configured
	closers    []func() error
}

// backends connects the specialist collaborators. A backend that cannot be
// reached is logged and left out so the remaining specialists still work.
func backends(cfg config.Config) (specialists.Backends, *notifier.EmailNotifier, error) {
	var b specialists.Backends

	if k8s, err := kubernetes.Connect(cfg.Kubernetes); err != nil {
		setupLog.Error(err, "Kubernetes specialist disabled")
	} else {
		b.Kubernetes = k8s
	}

	if cfg.Prometheus.URL != "" {
		prom, err := prometheus.New(cfg.Prometheus)
		if err != nil {
			return b, nil, fmt.Errorf("prometheus client: %w", err)
		}
		b.Prometheus = prom
	}

	b.Network = network.New()

	var mailer *notifier.EmailNotifier
	if cfg.Email.Enabled() {
		var err error
		mailer, err = notifier.NewEmailNotifier(cfg.SMTP, cfg.Email.From, cfg.Email.To)
		if err != nil {
			return b, nil, fmt.Errorf("email notifier: %w", err)
		}
		b.Email = mailer
	}
	return b, mailer, nil
}

func newStore(ctx context.Context, cfg config.Config) (memory.Store, *memory.InMemoryStore, func() error, error) {
	switch cfg.Memory.Backend {
	case config.BackendRedis:
		rs, err := memory.NewRedisStore(ctx, cfg.Memory.Redis(), cfg.Memory.Retention())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis memory store: %w", err)
		}
		setupLog.Info("Using Redis conversation memory", "addr", cfg.Memory.RedisAddr)
		return rs, nil, rs.Close, nil
	default:
		ms := memory.NewInMemoryStore(cfg.Memory.Retention())
		go ms.Run(ctx)
		return ms, ms, nil, nil
	}
}

// buildEngine wires the engine. The in-memory janitor stops with ctx.
func buildEngine(ctx context.Context, cfg config.Config) (*engine, error) {
	base, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("ai provider: %w", err)
	}
	var budget *ai.Budget
	if cfg.AI.DailyTokenLimit > 0 {
		budget = ai.DailyBudget(cfg.AI.DailyTokenLimit)
	}
	provider := ai.NewGuardedProvider(base, nil, budget)
	if !provider.Available() {
		setupLog.Info("WARNING: AI provider is not available; answers will be placeholders", "provider", provider.Name())
	}

	b, mailer, err := backends(cfg)
	if err != nil {
		return nil, err
	}
	agents, err := specialists.Build(b)
	if err != nil {
		return nil, err
	}

	store, memStats, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sanitizer := ai.NewSanitizer()
	loops := specialists.Loops(agents, func(a agent.Agent) *agent.Loop {
		return agent.NewLoop(a, provider,
			agent.WithMaxIterations(cfg.Agent.MaxIterations),
			agent.WithMaxTokens(cfg.AI.MaxTokens),
			agent.WithSanitizer(sanitizer),
		)
	})
	sup, err := supervisor.New(provider, store, loops,
		supervisor.WithRequestTimeout(cfg.Supervisor.RequestTimeout),
		supervisor.WithMaxTokens(cfg.AI.MaxTokens),
	)
	if err != nil {
		if closeStore != nil {
			_ = closeStore()
		}
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	e := &engine{
		provider:   provider,
		store:      store,
		memStats:   memStats,
		supervisor: sup,
		email:      mailer,
	}
	if closeStore != nil {
		e.closers = append(e.closers, closeStore)
	}
	setupLog.Info("Engine ready", "provider", provider.Name(), "agents", len(agents), "memory", cfg.Memory.Backend)
	return e, nil
}

// notifiers builds the async notification fan-out. The email notifier
// doubles as a notification target when configured.
func (e *engine) notifiers(cfg config.Config) *notifier.Registry {
	reg := notifier.NewRegistry()
	if u := cfg.Notify.WebhookURL; u != "" {
		reg.Register(notifier.NewWebhookNotifier(u))
	}
	if u := cfg.Notify.SlackWebhookURL; u != "" {
		reg.Register(notifier.NewSlackNotifier(u))
	}
	if u := cfg.Notify.TeamsWebhookURL; u != "" {
		reg.Register(notifier.NewTeamsNotifier(u))
	}
	if k := cfg.Notify.PagerDutyRoutingKey; k != "" {
		reg.Register(notifier.NewPagerDutyNotifier(k))
	}
	if e.email != nil {
		reg.Register(e.email)
	}
	return reg
}

func (e *engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
