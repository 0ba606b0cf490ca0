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

// Package supervisor routes questions to specialist agents, runs them in
// sequence and composes one answer per question.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/tranductrinh/kube-medic/internal/agent"
	"github.com/tranductrinh/kube-medic/internal/ai"
	"github.com/tranductrinh/kube-medic/internal/memory"
)

var log = logf.Log.WithName("supervisor")

// ErrRoutingAmbiguous means the model asked for specialists that do not
// exist. The question is then answered without any specialist.
var ErrRoutingAmbiguous = errors.New("routing ambiguous")

// DefaultRequestTimeout bounds one Handle call.
const DefaultRequestTimeout = 5 * time.Minute

// maxRoutedSteps caps how many specialist runs one question can trigger.
const maxRoutedSteps = 8

// routeNone labels questions answered without a specialist.
const routeNone = "none"

var routesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kubemedic_supervisor_routes_total",
		Help: "Specialist selections made by the supervisor",
	},
	[]string{"agent"},
)

func init() {
	metrics.Registry.MustRegister(routesTotal)
}

// Answer is the supervisor's reply to one question.
type Answer struct {
	Text string `json:"text"`
	// Agents are the specialists that ran, in order.
	Agents []string `json:"agents"`
	// Inconclusive is set when any specialist was aborted.
	Inconclusive bool            `json:"inconclusive"`
	Outcomes     []agent.Outcome `json:"-"`
	TokensUsed   int             `json:"tokensUsed"`
}

// Supervisor is safe for concurrent use. Work on one thread id is
// serialized; different threads run independently.
type Supervisor struct {
	provider       ai.Provider
	store          memory.Store
	locks          *memory.KeyedMutex
	loops          map[string]*agent.Loop
	agents         []agent.Agent
	routeTools     []ai.ToolDef
	router         string
	requestTimeout time.Duration
	maxTokens      int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRequestTimeout bounds each Handle call. Non-positive values keep the
// default.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithMaxTokens sets the token limit of routing and composition calls.
func WithMaxTokens(n int) Option {
	return func(s *Supervisor) { s.maxTokens = n }
}

// New builds a Supervisor over loops. Agent names must be unique.
func New(provider ai.Provider, store memory.Store, loops []*agent.Loop, opts ...Option) (*Supervisor, error) {
	if provider == nil {
		return nil, fmt.Errorf("supervisor requires a model provider")
	}
	if store == nil {
		return nil, fmt.Errorf("supervisor requires a memory store")
	}
	s := &Supervisor{
		provider:       provider,
		store:          store,
		locks:          memory.NewKeyedMutex(),
		loops:          make(map[string]*agent.Loop, len(loops)),
		requestTimeout: DefaultRequestTimeout,
	}
	for _, l := range loops {
		a := l.Agent()
		if a.Name == "" {
			return nil, fmt.Errorf("agent name must not be empty")
		}
		if _, dup := s.loops[a.Name]; dup {
			return nil, fmt.Errorf("duplicate agent %q", a.Name)
		}
		s.loops[a.Name] = l
		s.agents = append(s.agents, a)
		s.routeTools = append(s.routeTools, ai.ToolDef{
			Name:        routeToolName(a.Name),
			Description: a.Description,
			Params: []ai.ToolParam{{
				Name:        "request",
				Type:        "string",
				Description: "The question or task for this expert",
				Required:    true,
			}},
		})
	}
	s.router = routerPrompt(s.agents)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Agents returns the configured specialists in registration order.
func (s *Supervisor) Agents() []agent.Agent {
	return append([]agent.Agent(nil), s.agents...)
}

// Ready reports whether the model provider can serve requests.
func (s *Supervisor) Ready() bool {
	return s.provider.Available()
}

// step is one routed specialist run.
type step struct {
	agent   string
	request string
}

// Handle answers question within threadID. An empty threadID is stateless.
// Specialist failures degrade the answer; an error is returned only when no
// answer could be produced at all.
func (s *Supervisor) Handle(ctx context.Context, question, threadID string) (Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	ctx = logf.IntoContext(ctx, log.WithValues("thread", threadID))
	logger := logf.FromContext(ctx)

	if threadID != "" {
		unlock, err := s.locks.Lock(ctx, threadID)
		if err != nil {
			return Answer{}, fmt.Errorf("waiting for thread %q: %w", threadID, err)
		}
		defer unlock()
	}

	prior, err := s.store.Turns(ctx, threadID)
	if err != nil {
		return Answer{}, fmt.Errorf("loading thread %q: %w", threadID, err)
	}
	running := append(prior[:len(prior):len(prior)], memory.UserTurn(question))

	steps, direct, tokens, err := s.route(ctx, running)
	if err != nil {
		return Answer{}, err
	}
	ans := Answer{TokensUsed: tokens}

	for _, st := range steps {
		routesTotal.WithLabelValues(st.agent).Inc()
		logger.V(1).Info("Delegating to specialist", "agent", st.agent)
		out := s.loops[st.agent].Run(ctx, running, st.request)
		running = append(running, out.Turns...)
		ans.Outcomes = append(ans.Outcomes, out)
		ans.Agents = append(ans.Agents, st.agent)
		ans.TokensUsed += out.TokensUsed
		if out.Inconclusive() {
			ans.Inconclusive = true
		}
	}

	switch len(ans.Outcomes) {
	case 0:
		routesTotal.WithLabelValues(routeNone).Inc()
		text, used, err := s.answerDirectly(ctx, running, direct)
		if err != nil {
			return Answer{}, err
		}
		ans.Text = text
		ans.TokensUsed += used
	case 1:
		ans.Text = ans.Outcomes[0].Answer
	default:
		text, used := s.compose(ctx, question, ans.Outcomes)
		ans.Text = text
		ans.TokensUsed += used
	}

	if err := s.store.Append(ctx, threadID, memory.UserTurn(question), memory.AssistantTurn(ans.Text)); err != nil {
		// The answer is still useful; losing it from memory only costs context.
		logger.Error(err, "Failed to record turns")
	}
	logger.Info("Question answered", "agents", ans.Agents, "inconclusive", ans.Inconclusive, "tokens", ans.TokensUsed)
	return ans, nil
}

// route asks the model which specialists should run. It returns the steps
// to run, or the model's direct answer when none are needed.
func (s *Supervisor) route(ctx context.Context, turns []memory.Turn) ([]step, string, int, error) {
	if len(s.agents) == 0 {
		return nil, "", 0, nil
	}
	resp, err := s.provider.Complete(ctx, ai.Request{
		System:    s.router,
		Messages:  memory.Messages(turns),
		Tools:     s.routeTools,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return nil, "", 0, fmt.Errorf("routing failed: %w", err)
	}
	if !resp.HasToolCalls() {
		return nil, resp.Content, resp.TokensUsed, nil
	}

	steps, err := s.parseRoute(resp.ToolCalls, turns[len(turns)-1].Content)
	if err != nil {
		log.Info("Answering without specialists", "reason", err.Error())
		return nil, "", resp.TokensUsed, nil
	}
	return steps, "", resp.TokensUsed, nil
}

func (s *Supervisor) parseRoute(calls []ai.ToolCall, question string) ([]step, error) {
	var steps []step
	var unknown []string
	for _, c := range calls {
		name, ok := strings.CutPrefix(c.Name, routeToolPrefix)
		if _, known := s.loops[name]; !ok || !known {
			unknown = append(unknown, c.Name)
			continue
		}
		var args struct {
			Request string `json:"request"`
		}
		if len(c.Args) > 0 {
			_ = json.Unmarshal(c.Args, &args)
		}
		req := strings.TrimSpace(args.Request)
		if req == "" {
			req = question
		}
		steps = append(steps, step{agent: name, request: req})
		if len(steps) == maxRoutedSteps {
			break
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no known specialist in %v", ErrRoutingAmbiguous, unknown)
	}
	if len(unknown) > 0 {
		log.Info("Ignoring unknown specialists", "names", unknown)
	}
	return steps, nil
}

// answerDirectly returns the router's own text, or asks the model once more
// without tools when the router produced none.
func (s *Supervisor) answerDirectly(ctx context.Context, turns []memory.Turn, routed string) (string, int, error) {
	if strings.TrimSpace(routed) != "" {
		return routed, 0, nil
	}
	resp, err := s.provider.Complete(ctx, ai.Request{
		System:    directPrompt,
		Messages:  memory.Messages(turns),
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return "", 0, fmt.Errorf("direct answer failed: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "I could not determine an answer from the conversation so far.", resp.TokensUsed, nil
	}
	return resp.Content, resp.TokensUsed, nil
}

// compose merges several specialist answers. If the model cannot summarize,
// the findings are returned as they are.
func (s *Supervisor) compose(ctx context.Context, question string, outcomes []agent.Outcome) (string, int) {
	findings := findingsSection(outcomes)
	resp, err := s.provider.Complete(ctx, ai.Request{
		System:    composePrompt,
		Messages:  []ai.Message{{Role: ai.RoleUser, Content: composeRequest(question, outcomes)}},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		log.Error(err, "Composition failed, returning raw findings")
		return findings, 0
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return findings, resp.TokensUsed
	}
	return summary + "\n\n" + findings, resp.TokensUsed
}
