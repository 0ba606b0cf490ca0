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

// Package aitest provides a deterministic ai.Provider for tests.
package aitest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tranductrinh/kube-medic/internal/ai"
)

// Step produces the reply to one Complete call. Returning an error makes
// Complete fail.
type Step func(req ai.Request) (*ai.Response, error)

// Text replies with a final answer.
func Text(content string) Step {
	return func(ai.Request) (*ai.Response, error) {
		return &ai.Response{Content: content, TokensUsed: 10}, nil
	}
}

// Call replies with a single tool call. args is marshaled to JSON.
func Call(name string, args any) Step {
	return Calls(ToolCall(name, args))
}

// Calls replies with several tool calls in one step.
func Calls(calls ...ai.ToolCall) Step {
	return func(ai.Request) (*ai.Response, error) {
		return &ai.Response{ToolCalls: calls, TokensUsed: 10}, nil
	}
}

// Fail makes the call return err.
func Fail(err error) Step {
	return func(ai.Request) (*ai.Response, error) {
		return nil, err
	}
}

var callSeq struct {
	sync.Mutex
	n int
}

// ToolCall builds an ai.ToolCall with a unique id.
func ToolCall(name string, args any) ai.ToolCall {
	raw, err := json.Marshal(args)
	if err != nil || args == nil {
		raw = []byte("{}")
	}
	callSeq.Lock()
	callSeq.n++
	id := fmt.Sprintf("call_%d", callSeq.n)
	callSeq.Unlock()
	return ai.ToolCall{ID: id, Name: name, Args: raw}
}

// Provider replays a script. Routes match on the system prompt so that
// concurrent agents each follow their own script; calls that match no route
// use the default script.
type Provider struct {
	mu       sync.Mutex
	scripts  map[string][]Step
	fallback []Step
	// Repeat, when set, answers every call past the end of a script.
	Repeat   Step
	requests []ai.Request
}

// New creates a provider with a default script.
func New(steps ...Step) *Provider {
	return &Provider{scripts: make(map[string][]Step), fallback: steps}
}

// Route registers a script for requests whose system prompt equals system.
func (p *Provider) Route(system string, steps ...Step) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[system] = append(p.scripts[system], steps...)
	return p
}

// Name returns "scripted".
func (p *Provider) Name() string { return "scripted" }

// Available always returns true.
func (p *Provider) Available() bool { return true }

// Complete pops the next step of the matching script.
func (p *Provider) Complete(ctx context.Context, req ai.Request) (*ai.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	req.Messages = append([]ai.Message(nil), req.Messages...)
	p.requests = append(p.requests, req)

	var step Step
	if script, ok := p.scripts[req.System]; ok && len(script) > 0 {
		step, p.scripts[req.System] = script[0], script[1:]
	} else if len(p.fallback) > 0 {
		step, p.fallback = p.fallback[0], p.fallback[1:]
	} else {
		step = p.Repeat
	}
	p.mu.Unlock()

	if step == nil {
		return nil, fmt.Errorf("aitest: script exhausted")
	}
	return step(req)
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []ai.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ai.Request(nil), p.requests...)
}

// RequestsFor returns the requests whose system prompt equals system.
func (p *Provider) RequestsFor(system string) []ai.Request {
	var out []ai.Request
	for _, r := range p.Requests() {
		if r.System == system {
			out = append(out, r)
		}
	}
	return out
}
