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

package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tranductrinh/kube-medic/internal/ai"
	"github.com/tranductrinh/kube-medic/internal/capability"
	"github.com/tranductrinh/kube-medic/internal/memory"
)

// Loop runs one Agent against a model provider. A Loop holds no per-run
// state and may be shared by concurrent runs.
type Loop struct {
	agent         Agent
	provider      ai.Provider
	maxIterations int
	maxTokens     int
	sanitizer     *ai.Sanitizer
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxIterations sets the iteration bound. Non-positive values keep the
// default, so the bound can never be disabled.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithMaxTokens sets the per-completion token limit.
func WithMaxTokens(n int) Option {
	return func(l *Loop) { l.maxTokens = n }
}

// WithSanitizer redacts capability output before the model sees it.
func WithSanitizer(s *ai.Sanitizer) Option {
	return func(l *Loop) { l.sanitizer = s }
}

// NewLoop creates a Loop for a.
func NewLoop(a Agent, provider ai.Provider, opts ...Option) *Loop {
	l := &Loop{
		agent:         a,
		provider:      provider,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Agent returns the agent definition.
func (l *Loop) Agent() Agent {
	return l.agent
}

// MaxIterations returns the iteration bound.
func (l *Loop) MaxIterations() int {
	return l.maxIterations
}

// run carries the mutable state of one Run call.
type run struct {
	*Loop
	out      Outcome
	messages []ai.Message
}

func (r *run) transition(to State) {
	r.out.State = to
	r.out.Trace = append(r.out.Trace, to)
}

func (r *run) appendTurn(t memory.Turn) {
	t.Agent = r.agent.Name
	r.out.Turns = append(r.out.Turns, t)
	r.messages = append(r.messages, t.Message())
}

// Run answers request. prior is the conversation so far and is never
// modified. Run always returns an Outcome; on ABORTED the Answer still
// carries what the model said before the run stopped.
func (l *Loop) Run(ctx context.Context, prior []memory.Turn, request string) Outcome {
	log := logf.FromContext(ctx).WithValues("agent", l.agent.Name)
	r := &run{
		Loop:     l,
		out:      Outcome{Agent: l.agent.Name},
		messages: memory.Messages(prior),
	}
	r.appendTurn(memory.UserTurn(request))
	r.transition(StateAwaitingModel)

	var tools []ai.ToolDef
	if l.agent.Capabilities != nil {
		tools = l.agent.Capabilities.Defs()
	}

	for r.out.Iterations < l.maxIterations {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, fmt.Errorf("agent %s cancelled: %w", l.agent.Name, err))
		}
		r.out.Iterations++

		resp, err := l.provider.Complete(ctx, ai.Request{
			System:    l.agent.SystemPrompt,
			Messages:  r.messages,
			Tools:     tools,
			MaxTokens: l.maxTokens,
		})
		if err != nil {
			return r.abort(ctx, fmt.Errorf("agent %s model call failed: %w", l.agent.Name, err))
		}
		r.out.TokensUsed += resp.TokensUsed

		if !resp.HasToolCalls() {
			r.appendTurn(memory.AssistantTurn(resp.Content))
			r.out.Answer = resp.Content
			r.transition(StateDone)
			log.V(1).Info("Specialist finished", "iterations", r.out.Iterations, "tokens", r.out.TokensUsed)
			recordRun(r.out)
			return r.out
		}

		calls := withCallIDs(resp.ToolCalls, r.out.Iterations)
		r.appendTurn(memory.Turn{
			Role:      ai.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
			CreatedAt: time.Now(),
		})
		r.transition(StateExecutingTools)
		log.V(1).Info("Invoking capabilities", "iteration", r.out.Iterations, "count", len(calls))

		results := l.invokeAll(ctx, calls)
		for i, res := range results {
			r.out.Invocations = append(r.out.Invocations, res)
			r.appendTurn(memory.Turn{
				Role:       ai.RoleTool,
				Content:    l.sanitizer.SanitizeString(res.Text()),
				ToolCallID: calls[i].ID,
				ToolName:   calls[i].Name,
				CreatedAt:  time.Now(),
			})
		}
		r.transition(StateAwaitingModel)
	}

	return r.abort(ctx, fmt.Errorf("agent %s stopped after %d iterations: %w",
		l.agent.Name, l.maxIterations, ErrIterationBoundExceeded))
}

// invokeAll runs every call concurrently and returns the results in call
// order once all of them have finished.
func (l *Loop) invokeAll(ctx context.Context, calls []ai.ToolCall) []capability.Result {
	results := make([]capability.Result, len(calls))
	var g errgroup.Group
	g.SetLimit(maxParallelInvocations)
	for i, call := range calls {
		g.Go(func() error {
			if l.agent.Capabilities == nil {
				results[i] = capability.Result{
					Capability: call.Name,
					Failure: &capability.Failure{
						Kind:    capability.FailureUnknownCapability,
						Message: fmt.Sprintf("agent %s has no capabilities", l.agent.Name),
					},
				}
				return nil
			}
			results[i] = l.agent.Capabilities.Invoke(ctx, call.Name, call.Args)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *run) abort(ctx context.Context, err error) Outcome {
	r.out.Err = err
	r.out.Answer = r.partialAnswer(err)
	r.transition(StateAborted)
	logf.FromContext(ctx).Info("Specialist aborted",
		"agent", r.agent.Name, "iterations", r.out.Iterations, "reason", err.Error())
	recordRun(r.out)
	return r.out
}

// partialAnswer combines whatever the model said during the run with a note
// that the investigation did not finish.
func (r *run) partialAnswer(err error) string {
	var b strings.Builder
	for _, t := range r.out.Turns {
		if t.Role == ai.RoleAssistant && strings.TrimSpace(t.Content) != "" {
			b.WriteString(strings.TrimSpace(t.Content))
			b.WriteString("\n\n")
		}
	}

	fmt.Fprintf(&b, "The %s investigation was inconclusive: %v.", r.agent.Name, err)
	if n := len(r.out.Invocations); n > 0 {
		names := make([]string, 0, n)
		seen := make(map[string]bool, n)
		for _, res := range r.out.Invocations {
			if !seen[res.Capability] {
				seen[res.Capability] = true
				names = append(names, res.Capability)
			}
		}
		fmt.Fprintf(&b, " Checked so far: %s.", strings.Join(names, ", "))
		if failed := r.out.FailedInvocations(); failed > 0 {
			fmt.Fprintf(&b, " %d of %d capability calls failed.", failed, n)
		}
	}
	return b.String()
}

// withCallIDs fills in ids for providers that do not assign them, so every
// tool turn can reference its call.
func withCallIDs(calls []ai.ToolCall, iteration int) []ai.ToolCall {
	out := make([]ai.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d_%d", iteration, i)
		}
		out[i] = c
	}
	return out
}
