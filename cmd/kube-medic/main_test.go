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
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/pflag"

	"github.com/tranductrinh/kube-medic/internal/config"
	"github.com/tranductrinh/kube-medic/internal/supervisor"
)

type call struct {
	question string
	thread   string
}

type fakeAsker struct {
	mu     sync.Mutex
	calls  []call
	answer supervisor.Answer
	err    error
}

func (f *fakeAsker) Handle(_ context.Context, q, thread string) (supervisor.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{question: q, thread: thread})
	if f.err != nil {
		return supervisor.Answer{}, f.err
	}
	return f.answer, nil
}

// ---------------------------------------------------------------------------
// chat session
// ---------------------------------------------------------------------------

func TestSession_LoopCommands(t *testing.T) {
	fa := &fakeAsker{answer: supervisor.Answer{Text: "Pod api-0 is OOMKilled.", Agents: []string{"kubernetes"}}}
	var out bytes.Buffer
	s := newSession(fa, &out, false)
	first := s.thread

	in := strings.NewReader("why is api down?\n\n  \nfollow up\nNEW\nfresh question\nquit\nignored\n")
	if err := s.loop(context.Background(), in); err != nil {
		t.Fatalf("loop: %v", err)
	}

	if len(fa.calls) != 3 {
		t.Fatalf("expected 3 questions, got %d: %+v", len(fa.calls), fa.calls)
	}
	if !strings.HasPrefix(first, "session-") {
		t.Errorf("thread %q should start with session-", first)
	}
	if fa.calls[0].thread != first || fa.calls[1].thread != first {
		t.Errorf("questions before 'new' should share thread %s: %+v", first, fa.calls)
	}
	if fa.calls[2].thread == first {
		t.Error("'new' should start a different thread")
	}
	if fa.calls[1].question != "follow up" {
		t.Errorf("question = %q, want trimmed input", fa.calls[1].question)
	}

	got := out.String()
	for _, want := range []string{"medic (kubernetes)>", "Pod api-0 is OOMKilled.", "Started thread session-", "Bye."} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\033[") {
		t.Error("color disabled but output has escape codes")
	}
}

func TestSession_LoopEOF(t *testing.T) {
	fa := &fakeAsker{answer: supervisor.Answer{Text: "ok"}}
	s := newSession(fa, &bytes.Buffer{}, false)
	if err := s.loop(context.Background(), strings.NewReader("one question")); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if len(fa.calls) != 1 {
		t.Errorf("expected the unterminated last line to be asked, got %d calls", len(fa.calls))
	}
}

func TestSession_ErrorsDoNotEndLoop(t *testing.T) {
	fa := &fakeAsker{err: errors.New("model unavailable")}
	var out bytes.Buffer
	s := newSession(fa, &out, false)
	if err := s.loop(context.Background(), strings.NewReader("a\nb\nexit\n")); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if len(fa.calls) != 2 {
		t.Errorf("expected both questions asked, got %d", len(fa.calls))
	}
	if strings.Count(out.String(), "error: model unavailable") != 2 {
		t.Errorf("expected two error lines:\n%s", out.String())
	}
}

func TestSession_CancelledContextEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fa := &fakeAsker{err: context.Canceled}
	s := newSession(fa, &bytes.Buffer{}, false)
	if err := s.loop(ctx, strings.NewReader("a\nb\n")); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if len(fa.calls) != 1 {
		t.Errorf("loop should stop after cancellation, got %d calls", len(fa.calls))
	}
}

func TestSession_AskSingle(t *testing.T) {
	fa := &fakeAsker{answer: supervisor.Answer{Text: "partial", Inconclusive: true}}
	var out bytes.Buffer
	s := newSession(fa, &out, true)
	if err := s.ask(context.Background(), "q"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "inconclusive") {
		t.Errorf("inconclusive answer should be flagged:\n%s", got)
	}
	if !strings.Contains(got, colorGreen) {
		t.Errorf("color enabled but no escape codes:\n%q", got)
	}

	fa.err = errors.New("boom")
	if err := s.ask(context.Background(), "q"); err == nil {
		t.Error("single question should surface the failure")
	}
}

// ---------------------------------------------------------------------------
// flag overrides
// ---------------------------------------------------------------------------

func TestOverrides_OnlyChangedFlagsApply(t *testing.T) {
	var o overrides
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.bind(fs)
	if err := fs.Parse([]string{"--addr", ":9999", "--max-iterations", "4", "--prometheus-url", "http://prom:9090"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.AI.Provider = "openai"
	cfg.AI.Model = "gpt-4o"
	o.apply(fs, &cfg)

	if cfg.Server.Addr != ":9999" || cfg.Agent.MaxIterations != 4 || cfg.Prometheus.URL != "http://prom:9090" {
		t.Errorf("changed flags not applied: %+v %+v %+v", cfg.Server, cfg.Agent, cfg.Prometheus)
	}
	if cfg.AI.Provider != "openai" || cfg.AI.Model != "gpt-4o" {
		t.Errorf("unchanged flags must not clobber config: %+v", cfg.AI)
	}
	if cfg.Memory.Backend != config.BackendMemory {
		t.Errorf("Backend = %q", cfg.Memory.Backend)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "chat"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s not found: %v", name, err)
		}
	}
	for _, flag := range []string{"config", "env-file", "ai-provider", "zap-log-level"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
	// Building twice must not redefine flags.
	_ = newRootCommand()
}
