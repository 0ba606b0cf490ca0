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

package investigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"

	"github.com/tranductrinh/kube-medic/internal/agent"
	"github.com/tranductrinh/kube-medic/internal/ai"
	"github.com/tranductrinh/kube-medic/internal/ai/aitest"
	"github.com/tranductrinh/kube-medic/internal/capability"
	"github.com/tranductrinh/kube-medic/internal/memory"
	"github.com/tranductrinh/kube-medic/internal/notifier"
	"github.com/tranductrinh/kube-medic/internal/supervisor"
)

const k8sPrompt = "kubernetes specialist"

// newSupervisor wires a real supervisor with one kubernetes specialist whose
// only capability is podStatus.
func newSupervisor(provider ai.Provider, podStatus capability.Descriptor, opts ...agent.Option) *supervisor.Supervisor {
	loop := agent.NewLoop(agent.Agent{
		Name:         "kubernetes",
		Description:  "pods, logs and events",
		SystemPrompt: k8sPrompt,
		Capabilities: capability.MustNewRegistry(podStatus),
	}, provider, opts...)
	sup, err := supervisor.New(provider, memory.NewInMemoryStore(memory.DefaultRetention()), []*agent.Loop{loop})
	Expect(err).NotTo(HaveOccurred())
	return sup
}

func podStatusCapability(invoke func(context.Context, capability.Args) (string, error)) capability.Descriptor {
	return capability.Descriptor{
		Name:        "get_pod_status",
		Description: "Status of one pod",
		Params:      []capability.Param{{Name: "pod_name", Type: capability.String, Required: true}},
		Invoke:      invoke,
	}
}

// echoLastTurn answers with whatever the last turn said.
func echoLastTurn(req ai.Request) (*ai.Response, error) {
	last := req.Messages[len(req.Messages)-1]
	return &ai.Response{Content: "Finding: " + last.Content}, nil
}

func payload(s string) []byte { return []byte(s) }

var _ = Describe("Investigation Pipeline", func() {
	var (
		ctx      context.Context
		rec      *notifier.RecordingNotifier
		p        *Pipeline
		leakOpts goleak.Option
	)

	BeforeEach(func() {
		leakOpts = goleak.IgnoreCurrent()
		ctx = context.Background()
		rec = notifier.NewRecordingNotifier()
		p = nil
	})

	AfterEach(func() {
		if p != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(p.Shutdown(shutdownCtx)).To(Succeed())
		}
		goleak.VerifyNone(GinkgoT(), leakOpts)
	})

	start := func(h Handler, cfg Config) {
		var err error
		p, err = New(h, rec, cfg)
		Expect(err).NotTo(HaveOccurred())
		p.Start(ctx)
	}

	Context("When a sync webhook asks about a named pod", func() {
		It("should return an answer containing the pod's status", func() {
			provider := aitest.New(aitest.Call("ask_kubernetes", map[string]string{"request": "Check pod shop/api-7d9f"}))
			provider.Route(k8sPrompt,
				aitest.Call("get_pod_status", map[string]string{"pod_name": "api-7d9f"}),
				echoLastTurn,
			)
			sup := newSupervisor(provider, podStatusCapability(func(_ context.Context, args capability.Args) (string, error) {
				return args.String("pod_name") + " phase=Running reason=CrashLoopBackOff restarts=14", nil
			}))
			start(sup, fastConfig())

			res, err := p.Submit(ctx, Request{Payload: payload(singleAlert), Mode: ModeSync})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(StatusCompleted))
			Expect(res.Answer).To(ContainSubstring("CrashLoopBackOff"))
			Expect(res.Agents).To(Equal([]string{"kubernetes"}))
			Expect(res.ThreadID).To(HavePrefix("webhook-"))

			By("not notifying for sync investigations")
			Consistently(rec.Len, 50*time.Millisecond).Should(BeZero())
		})

		It("should return a failed result with text instead of an error", func() {
			start(failing(errProvider), fastConfig())

			res, err := p.Submit(ctx, Request{Payload: payload(`{"event":"deploy"}`), Mode: ModeSync})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(StatusFailed))
			Expect(res.Attempts).To(Equal(1))
			Expect(res.Text()).To(Equal("Investigation failed: model provider unavailable"))
			Expect(p.DeadLetters()).To(BeEmpty())
			Expect(rec.Len()).To(BeZero())
		})
	})

	Context("When an async investigation's capability fails", func() {
		It("should deliver exactly one notification describing an inconclusive investigation", func() {
			provider := aitest.New(aitest.Call("ask_kubernetes", map[string]string{"request": "Check pod api-7d9f"}))
			// The specialist keeps asking for the failing tool until its bound.
			provider.Repeat = aitest.Call("get_pod_status", map[string]string{"pod_name": "api-7d9f"})
			sup := newSupervisor(provider, podStatusCapability(func(context.Context, capability.Args) (string, error) {
				return "", errors.New("cluster API unavailable")
			}), agent.WithMaxIterations(2))
			start(sup, fastConfig())

			ack, err := p.Submit(ctx, Request{Payload: payload(singleAlert), Mode: ModeAsync})
			Expect(err).NotTo(HaveOccurred())
			Expect(ack.Status).To(Equal(StatusAccepted))
			Expect(ack.InvestigationID).NotTo(BeEmpty())

			Eventually(rec.Len).Should(Equal(1))
			Consistently(rec.Len, 100*time.Millisecond).Should(Equal(1))

			n := rec.Sent()[0]
			Expect(n.InvestigationID).To(Equal(ack.InvestigationID))
			Expect(n.Inconclusive).To(BeTrue())
			Expect(n.Mode).To(Equal("async"))
			Expect(n.Question).To(ContainSubstring("KubePodCrashLooping"))
		})
	})

	Context("When the handler fails on every attempt", func() {
		It("should retry, notify once as failed and dead-letter the payload", func() {
			h := failing(errProvider)
			cfg := fastConfig()
			cfg.RetryMax = 3
			start(h, cfg)

			ack, err := p.Submit(ctx, Request{Payload: payload(singleAlert), Mode: ModeAsync, ThreadID: "incident-7"})
			Expect(err).NotTo(HaveOccurred())

			Eventually(rec.Len).Should(Equal(1))
			Consistently(rec.Len, 50*time.Millisecond).Should(Equal(1))
			Expect(h.Calls()).To(Equal(3))

			n := rec.Sent()[0]
			Expect(n.Failed()).To(BeTrue())
			Expect(n.Attempts).To(Equal(3))
			Expect(n.Error).To(Equal("model provider unavailable"))
			Expect(n.ThreadID).To(Equal("incident-7"))

			dead := p.DeadLetters()
			Expect(dead).To(HaveLen(1))
			Expect(dead[0].InvestigationID).To(Equal(ack.InvestigationID))
			Expect(string(dead[0].Payload)).To(MatchJSON(singleAlert))
			Expect(dead[0].Attempts).To(Equal(3))

			stats := p.Stats()
			Expect(stats.Received).To(BeEquivalentTo(1))
			Expect(stats.Failed).To(BeEquivalentTo(1))
			Expect(stats.DeadLetters).To(Equal(1))
		})
	})

	Context("When the handler recovers after a failure", func() {
		It("should complete on the second attempt", func() {
			h := &fakeHandler{fn: func(_ context.Context, _, _ string, call int) (supervisor.Answer, error) {
				if call == 1 {
					return supervisor.Answer{}, context.DeadlineExceeded
				}
				return supervisor.Answer{Text: "api-7d9f is OOMKilled", Agents: []string{"kubernetes", "prometheus"}}, nil
			}}
			start(h, fastConfig())

			_, err := p.Submit(ctx, Request{Payload: payload(singleAlert), Mode: ModeAsync})
			Expect(err).NotTo(HaveOccurred())

			Eventually(rec.Len).Should(Equal(1))
			n := rec.Sent()[0]
			Expect(n.Status).To(Equal(notifier.StatusCompleted))
			Expect(n.Attempts).To(Equal(2))
			Expect(n.Answer).To(Equal("api-7d9f is OOMKilled"))
			Expect(n.Agents).To(Equal([]string{"kubernetes", "prometheus"}))
			Expect(p.DeadLetters()).To(BeEmpty())
		})
	})

	Context("When the handler panics", func() {
		It("should report a failed investigation and keep the worker alive", func() {
			h := &fakeHandler{fn: func(_ context.Context, _, _ string, call int) (supervisor.Answer, error) {
				if call == 1 {
					panic("nil map write")
				}
				return supervisor.Answer{Text: "fine"}, nil
			}}
			cfg := fastConfig()
			cfg.RetryMax = 1
			start(h, cfg)

			_, err := p.Submit(ctx, Request{Payload: payload(`{"a":1}`), Mode: ModeAsync})
			Expect(err).NotTo(HaveOccurred())
			Eventually(rec.Len).Should(Equal(1))
			Expect(rec.Sent()[0].Error).To(ContainSubstring("investigation panicked: nil map write"))

			By("serving the next investigation on the same worker")
			_, err = p.Submit(ctx, Request{Payload: payload(`{"a":2}`), Mode: ModeAsync})
			Expect(err).NotTo(HaveOccurred())
			Eventually(rec.Len).Should(Equal(2))
			Expect(rec.Sent()[1].Answer).To(Equal("fine"))
		})
	})

	Context("When the queue is full", func() {
		It("should notify the rejected investigation as failed", func() {
			cfg := fastConfig()
			cfg.QueueSize = 1
			var err error
			// Not started, so nothing drains the queue.
			p, err = New(answering("ok"), rec, cfg)
			Expect(err).NotTo(HaveOccurred())

			_, err = p.Submit(ctx, Request{Payload: payload(`{"n":1}`), Mode: ModeAsync})
			Expect(err).NotTo(HaveOccurred())

			res, err := p.Submit(ctx, Request{Payload: payload(`{"n":2}`), Mode: ModeAsync})
			Expect(err).To(MatchError(ErrQueueFull))
			Expect(res.Status).To(Equal(StatusFailed))
			Expect(rec.Len()).To(Equal(1))
			Expect(rec.Sent()[0].Error).To(Equal(ErrQueueFull.Error()))
			Expect(p.DeadLetters()).To(HaveLen(1))

			By("failing what is still queued at shutdown")
			Expect(p.Shutdown(ctx)).To(Succeed())
			Expect(rec.Len()).To(Equal(2))
			Expect(rec.Sent()[1].Failed()).To(BeTrue())
			p = nil
		})
	})

	Context("When an alert filter is configured", func() {
		var h *fakeHandler

		BeforeEach(func() {
			h = answering("checked")
			cfg := fastConfig()
			cfg.AlertFilter = `labels.severity == "critical"`
			start(h, cfg)
		})

		It("should skip payloads with no matching alert", func() {
			res, err := p.Submit(ctx, Request{
				Payload: payload(`{"alerts":[{"status":"firing","labels":{"alertname":"Watchdog","severity":"warning"}}]}`),
				Mode:    ModeAsync,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(StatusSkipped))
			Consistently(rec.Len, 50*time.Millisecond).Should(BeZero())
			Expect(h.Calls()).To(BeZero())
			Expect(p.Stats().Skipped).To(BeEquivalentTo(1))
		})

		It("should investigate only the matching alerts", func() {
			var question string
			h.fn = func(_ context.Context, q, _ string, _ int) (supervisor.Answer, error) {
				question = q
				return supervisor.Answer{Text: "checked"}, nil
			}
			res, err := p.Submit(ctx, Request{
				Payload: payload(`{"alerts":[
					{"status":"firing","labels":{"alertname":"Watchdog","severity":"warning"}},
					{"status":"firing","labels":{"alertname":"KubePodCrashLooping","severity":"critical"}}
				]}`),
				Mode: ModeSync,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(StatusCompleted))
			Expect(question).To(ContainSubstring("Alert: KubePodCrashLooping"))
			Expect(question).NotTo(ContainSubstring("Watchdog"))
		})

		It("should not filter generic payloads", func() {
			res, err := p.Submit(ctx, Request{Payload: payload(`{"event":"deploy"}`), Mode: ModeSync})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(StatusCompleted))
		})
	})

	Context("When managing dead letters", func() {
		It("should retry and clear them", func() {
			h := &fakeHandler{}
			h.fn = func(_ context.Context, _, _ string, call int) (supervisor.Answer, error) {
				if call <= 2 {
					return supervisor.Answer{}, errProvider
				}
				return supervisor.Answer{Text: "recovered"}, nil
			}
			cfg := fastConfig()
			cfg.RetryMax = 1
			start(h, cfg)

			for i := range 2 {
				_, err := p.Submit(ctx, Request{Payload: payload(fmt.Sprintf(`{"n":%d}`, i)), Mode: ModeAsync})
				Expect(err).NotTo(HaveOccurred())
			}
			Eventually(func() int { return len(p.DeadLetters()) }).Should(Equal(2))

			_, err := p.RetryDeadLetter(ctx, 5)
			Expect(errors.Is(err, ErrDeadLetterNotFound)).To(BeTrue())

			first := p.DeadLetters()[0]
			res, err := p.RetryDeadLetter(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(StatusAccepted))
			Expect(res.ThreadID).To(Equal(first.ThreadID))

			Eventually(rec.Len).Should(Equal(3))
			Expect(rec.Sent()[2].Answer).To(Equal("recovered"))
			Expect(p.DeadLetters()).To(HaveLen(1))

			Expect(p.ClearDeadLetters()).To(Equal(1))
			Expect(p.DeadLetters()).To(BeEmpty())
		})
	})

	Context("When answering a direct question", func() {
		It("should pass the question and thread through untouched", func() {
			var gotQ, gotThread string
			h := &fakeHandler{fn: func(_ context.Context, q, thread string, _ int) (supervisor.Answer, error) {
				gotQ, gotThread = q, thread
				return supervisor.Answer{Text: "3 pods are pending", Inconclusive: true}, nil
			}}
			start(h, fastConfig())

			res := p.Ask(ctx, "How many pods are pending?", "default")
			Expect(res.Status).To(Equal(StatusCompleted))
			Expect(res.Text()).To(Equal("3 pods are pending"))
			Expect(res.Inconclusive).To(BeTrue())
			Expect(gotQ).To(Equal("How many pods are pending?"))
			Expect(gotThread).To(Equal("default"))
			Expect(rec.Len()).To(BeZero())
		})
	})

	Context("When shutting down", func() {
		It("should drain queued investigations before returning", func() {
			start(answering("done"), fastConfig())
			for i := range 3 {
				_, err := p.Submit(ctx, Request{Payload: payload(fmt.Sprintf(`{"n":%d}`, i)), Mode: ModeAsync})
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(p.Shutdown(ctx)).To(Succeed())
			Expect(rec.Len()).To(Equal(3))
			Expect(p.Ready()).To(BeFalse())

			_, err := p.Submit(ctx, Request{Payload: payload(`{}`), Mode: ModeAsync})
			Expect(err).To(MatchError(ErrClosed))
			p = nil
		})

		It("should fail and notify everything still running when the deadline passes", func() {
			start(blocking(), fastConfig())
			for i := range 3 {
				_, err := p.Submit(ctx, Request{Payload: payload(fmt.Sprintf(`{"n":%d}`, i)), Mode: ModeAsync})
				Expect(err).NotTo(HaveOccurred())
			}
			Eventually(func() int64 { return p.Stats().InFlight }).Should(BeEquivalentTo(1))

			shutdownCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			Expect(p.Shutdown(shutdownCtx)).To(MatchError(context.DeadlineExceeded))

			Expect(rec.Len()).To(Equal(3))
			for _, n := range rec.Sent() {
				Expect(n.Failed()).To(BeTrue())
			}
			Expect(p.Stats().InFlight).To(BeZero())
			p = nil
		})
	})
})
