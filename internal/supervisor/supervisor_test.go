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

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tranductrinh/kube-medic/internal/agent"
	"github.com/tranductrinh/kube-medic/internal/ai"
	"github.com/tranductrinh/kube-medic/internal/ai/aitest"
	"github.com/tranductrinh/kube-medic/internal/capability"
	"github.com/tranductrinh/kube-medic/internal/memory"
)

const (
	k8sPrompt  = "k8s specialist"
	promPrompt = "prometheus specialist"
)

type fixture struct {
	provider *aitest.Provider
	store    *memory.InMemoryStore
	sup      *Supervisor
	router   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	podStatus := capability.MustNewRegistry(capability.Descriptor{
		Name:   "get_pod_status",
		Params: []capability.Param{{Name: "pod_name", Type: capability.String, Required: true}},
		Invoke: func(_ context.Context, args capability.Args) (string, error) {
			return args.String("pod_name") + " status: CrashLoopBackOff", nil
		},
	})
	memUsage := capability.MustNewRegistry(capability.Descriptor{
		Name:   "prometheus_query",
		Params: []capability.Param{{Name: "query", Type: capability.String, Required: true}},
		Invoke: func(context.Context, capability.Args) (string, error) {
			return "container_memory_working_set_bytes: 512Mi of 512Mi", nil
		},
	})

	p := aitest.New()
	loops := []*agent.Loop{
		agent.NewLoop(agent.Agent{Name: "kubernetes", Description: "pods, logs, events", SystemPrompt: k8sPrompt, Capabilities: podStatus}, p),
		agent.NewLoop(agent.Agent{Name: "prometheus", Description: "metrics", SystemPrompt: promPrompt, Capabilities: memUsage}, p),
	}
	store := memory.NewInMemoryStore(memory.Retention{MaxTurns: 20})
	sup, err := New(p, store, loops)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{provider: p, store: store, sup: sup, router: routerPrompt(sup.Agents())}
}

func route(agents ...string) aitest.Step {
	calls := make([]ai.ToolCall, len(agents))
	for i, a := range agents {
		calls[i] = aitest.ToolCall(routeToolName(a), map[string]string{"request": "investigate for " + a})
	}
	return aitest.Calls(calls...)
}

func TestSupervisor_SingleSpecialist(t *testing.T) {
	f := newFixture(t)
	f.provider.Route(f.router, route("kubernetes"))
	f.provider.Route(k8sPrompt,
		aitest.Call("get_pod_status", map[string]string{"pod_name": "web-1"}),
		aitest.Text("web-1 is in CrashLoopBackOff"),
	)

	ans, err := f.sup.Handle(context.Background(), "Why is web-1 failing?", "t1")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if ans.Text != "web-1 is in CrashLoopBackOff" {
		t.Errorf("Text = %q", ans.Text)
	}
	if len(ans.Agents) != 1 || ans.Agents[0] != "kubernetes" || ans.Inconclusive {
		t.Errorf("Agents = %v, Inconclusive = %v", ans.Agents, ans.Inconclusive)
	}

	// The specialist received the routed request, not the raw question.
	k8sReqs := f.provider.RequestsFor(k8sPrompt)
	msgs := k8sReqs[0].Messages
	if got := msgs[len(msgs)-1].Content; got != "investigate for kubernetes" {
		t.Errorf("specialist request = %q", got)
	}

	turns, _ := f.store.Turns(context.Background(), "t1")
	if len(turns) != 2 || turns[0].Content != "Why is web-1 failing?" || turns[1].Content != ans.Text {
		t.Errorf("memory = %+v, want question and answer", turns)
	}
}

func TestSupervisor_MultipleSpecialistsSeeEachOther(t *testing.T) {
	f := newFixture(t)
	f.provider.Route(f.router, route("kubernetes", "prometheus"))
	f.provider.Route(k8sPrompt,
		aitest.Call("get_pod_status", map[string]string{"pod_name": "api-0"}),
		aitest.Text("K8S FINDING: api-0 restarts with OOMKilled"),
	)
	f.provider.Route(promPrompt,
		aitest.Call("prometheus_query", map[string]string{"query": "container_memory_working_set_bytes"}),
		aitest.Text("PROM FINDING: memory at limit"),
	)
	f.provider.Route(composePrompt, aitest.Text("Summary: api-0 runs out of memory."))

	ans, err := f.sup.Handle(context.Background(), "Why does api-0 restart?", "t2")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if got := strings.Join(ans.Agents, ","); got != "kubernetes,prometheus" {
		t.Errorf("Agents = %s, want kubernetes,prometheus", got)
	}

	// The second specialist's context contains the first one's tool turn.
	promCtx := f.provider.RequestsFor(promPrompt)[0].Messages
	sawK8sTool := false
	for _, m := range promCtx {
		if m.Role == ai.RoleTool && strings.Contains(m.Content, "api-0 status: CrashLoopBackOff") {
			sawK8sTool = true
		}
	}
	if !sawK8sTool {
		t.Errorf("prometheus context lacks kubernetes tool turn: %+v", promCtx)
	}

	// Findings of both specialists appear, in run order.
	k8sAt := strings.Index(ans.Text, "K8S FINDING")
	promAt := strings.Index(ans.Text, "PROM FINDING")
	if k8sAt < 0 || promAt < 0 || k8sAt > promAt {
		t.Errorf("Text = %q, want both findings in order", ans.Text)
	}
	if !strings.HasPrefix(ans.Text, "Summary: api-0 runs out of memory.") {
		t.Errorf("Text = %q, want composed summary first", ans.Text)
	}
}

func TestSupervisor_CompositionFailureKeepsFindings(t *testing.T) {
	f := newFixture(t)
	f.provider.Route(f.router, route("kubernetes", "prometheus"))
	f.provider.Route(k8sPrompt, aitest.Text("K8S FINDING"))
	f.provider.Route(promPrompt, aitest.Text("PROM FINDING"))
	f.provider.Route(composePrompt, aitest.Fail(errors.New("rate limited")))

	ans, err := f.sup.Handle(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !strings.HasPrefix(ans.Text, "Findings by specialist:") ||
		strings.Index(ans.Text, "K8S FINDING") > strings.Index(ans.Text, "PROM FINDING") {
		t.Errorf("Text = %q", ans.Text)
	}
}

func TestSupervisor_NoSpecialist(t *testing.T) {
	tests := []struct {
		name   string
		router aitest.Step
		direct []aitest.Step
		want   string
	}{
		{
			name:   "router answers directly",
			router: aitest.Text("You asked about web-1 earlier; it was crashing."),
			want:   "You asked about web-1 earlier; it was crashing.",
		},
		{
			name:   "unknown specialist is treated as none",
			router: aitest.Call("ask_database", map[string]string{"request": "x"}),
			direct: []aitest.Step{aitest.Text("answered from context")},
			want:   "answered from context",
		},
		{
			name:   "empty router reply asks again without tools",
			router: aitest.Text(""),
			direct: []aitest.Step{aitest.Text("direct")},
			want:   "direct",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.provider.Route(f.router, tt.router)
			f.provider.Route(directPrompt, tt.direct...)

			ans, err := f.sup.Handle(context.Background(), "what did you find?", "t")
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if ans.Text != tt.want || len(ans.Agents) != 0 {
				t.Errorf("Answer = %+v, want %q with no agents", ans, tt.want)
			}
			if len(f.provider.RequestsFor(k8sPrompt)) != 0 {
				t.Error("a specialist ran")
			}
		})
	}
}

func TestSupervisor_ParseRouteAmbiguous(t *testing.T) {
	f := newFixture(t)
	_, err := f.sup.parseRoute([]ai.ToolCall{{Name: "ask_unknown"}, {Name: "get_pod_status"}}, "q")
	if !errors.Is(err, ErrRoutingAmbiguous) {
		t.Errorf("parseRoute() error = %v, want ErrRoutingAmbiguous", err)
	}

	steps, err := f.sup.parseRoute([]ai.ToolCall{{Name: "ask_kubernetes", Args: []byte(`{}`)}}, "the question")
	if err != nil || len(steps) != 1 || steps[0].request != "the question" {
		t.Errorf("parseRoute() = %+v, %v, want question as request", steps, err)
	}
}

func TestSupervisor_SpecialistFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.provider.Route(f.router, route("kubernetes", "prometheus"))
	f.provider.Route(k8sPrompt, aitest.Fail(errors.New("model timeout")))
	f.provider.Route(promPrompt, aitest.Text("PROM FINDING"))
	f.provider.Route(composePrompt, aitest.Text("Partial summary."))

	ans, err := f.sup.Handle(context.Background(), "q", "t")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !ans.Inconclusive {
		t.Error("Inconclusive = false, want true")
	}
	if !strings.Contains(ans.Text, "(inconclusive)") || !strings.Contains(ans.Text, "PROM FINDING") {
		t.Errorf("Text = %q", ans.Text)
	}
	if ans.Outcomes[0].State != agent.StateAborted {
		t.Errorf("first outcome state = %s", ans.Outcomes[0].State)
	}
}

func TestSupervisor_RoutingFailureIsAnError(t *testing.T) {
	f := newFixture(t)
	f.provider.Route(f.router, aitest.Fail(ai.ErrCircuitOpen))

	_, err := f.sup.Handle(context.Background(), "q", "t")
	if !errors.Is(err, ai.ErrCircuitOpen) {
		t.Fatalf("Handle() error = %v, want ErrCircuitOpen", err)
	}
	if turns, _ := f.store.Turns(context.Background(), "t"); len(turns) != 0 {
		t.Errorf("memory = %v, want untouched", turns)
	}
}

func TestSupervisor_MemoryAcrossQuestions(t *testing.T) {
	f := newFixture(t)
	f.provider.Route(f.router, aitest.Text("first answer"), aitest.Text("second answer"))

	ctx := context.Background()
	if _, err := f.sup.Handle(ctx, "first question", "thread"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if _, err := f.sup.Handle(ctx, "second question", "thread"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	second := f.provider.RequestsFor(f.router)[1].Messages
	var got []string
	for _, m := range second {
		got = append(got, m.Content)
	}
	want := "first question|first answer|second question"
	if strings.Join(got, "|") != want {
		t.Errorf("router context = %v, want %s", got, want)
	}

	// Stateless questions leave no trace.
	f.provider.Route(f.router, aitest.Text("x"))
	if _, err := f.sup.Handle(ctx, "stateless", ""); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if st := f.store.Stats(); st.Threads != 1 || st.Turns != 4 {
		t.Errorf("Stats() = %+v, want 1 thread with 4 turns", st)
	}
}

func TestSupervisor_SameThreadSerialized(t *testing.T) {
	f := newFixture(t)
	f.provider.Repeat = func(req ai.Request) (*ai.Response, error) {
		last := req.Messages[len(req.Messages)-1].Content
		return &ai.Response{Content: "answer to " + last}, nil
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Go(func() {
			if _, err := f.sup.Handle(context.Background(), fmt.Sprintf("q%d", i), "shared"); err != nil {
				t.Errorf("Handle() error = %v", err)
			}
		})
	}
	wg.Wait()

	turns, _ := f.store.Turns(context.Background(), "shared")
	if len(turns) != 20 {
		t.Fatalf("turns = %d, want 20", len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		if turns[i+1].Content != "answer to "+turns[i].Content {
			t.Errorf("pair %d = %q / %q", i/2, turns[i].Content, turns[i+1].Content)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	p := aitest.New()
	store := memory.NewInMemoryStore(memory.Retention{})
	l := agent.NewLoop(agent.Agent{Name: "kubernetes"}, p)

	if _, err := New(p, store, []*agent.Loop{l, l}); err == nil {
		t.Error("New() with duplicate agents error = nil")
	}
	if _, err := New(nil, store, nil); err == nil {
		t.Error("New() without provider error = nil")
	}
	if _, err := New(p, nil, nil); err == nil {
		t.Error("New() without store error = nil")
	}
}
