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
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tranductrinh/kube-medic/internal/history"
	"github.com/tranductrinh/kube-medic/internal/notifier"
)

var log = logf.Log.WithName("investigation")

const defaultNotifyTimeout = 30 * time.Second

// job is one accepted async investigation. The worker owns it.
type job struct {
	result  Result
	payload []byte
}

// Pipeline runs investigations. Async submissions go through a bounded
// queue served by a fixed pool of workers; every accepted async
// investigation produces exactly one notification.
type Pipeline struct {
	handler  Handler
	notifier notifier.Notifier
	cfg      Config
	filter   *AlertFilter

	queue chan job
	// mu guards closed and the queue's send side.
	mu     sync.RWMutex
	closed bool

	started atomic.Bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	deadLetters *history.Ring[DeadLetter]

	received  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	inFlight  atomic.Int64

	notifyTimeout time.Duration
	nowFunc       func() time.Time
}

// New builds a pipeline. The alert filter, when configured, is compiled
// here so a bad expression fails at startup.
func New(handler Handler, n notifier.Notifier, cfg Config) (*Pipeline, error) {
	if handler == nil {
		return nil, errors.New("investigation pipeline requires a handler")
	}
	if n == nil {
		return nil, errors.New("investigation pipeline requires a notifier")
	}
	cfg = cfg.withDefaults()

	p := &Pipeline{
		handler:       handler,
		notifier:      n,
		cfg:           cfg,
		queue:         make(chan job, cfg.QueueSize),
		deadLetters:   history.New[DeadLetter](cfg.DeadLetterSize),
		notifyTimeout: defaultNotifyTimeout,
		nowFunc:       time.Now,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	if cfg.AlertFilter != "" {
		f, err := NewAlertFilter(cfg.AlertFilter)
		if err != nil {
			return nil, err
		}
		p.filter = f
	}
	return p, nil
}

func resultLogger(res Result) logr.Logger {
	return log.WithValues("investigation", res.InvestigationID, "thread", res.ThreadID)
}

// Start launches the workers. Investigations keep ctx's values but not its
// cancellation; Shutdown controls their lifetime.
func (p *Pipeline) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := range p.cfg.Workers {
		p.wg.Go(func() {
			logger := log.WithValues("worker", i)
			logger.V(1).Info("Investigation worker started")
			for j := range p.queue {
				queueDepth.Set(float64(len(p.queue)))
				p.process(j)
			}
			logger.V(1).Info("Investigation worker stopped")
		})
	}
	log.Info("Investigation pipeline started", "workers", p.cfg.Workers, "queueSize", p.cfg.QueueSize)
}

// Ready reports whether the workers run and the handler can serve.
func (p *Pipeline) Ready() bool {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	return p.started.Load() && !closed && p.handler.Ready()
}

// Submit normalizes req.Payload and investigates it. Sync requests block
// until the answer is ready; their failures come back as a failed Result,
// not an error. Async requests return an accepted Result at once.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Result, error) {
	p.received.Add(1)
	payload := decodePayload(req.Payload)

	res := Result{
		InvestigationID: uuid.NewString(),
		Mode:            req.Mode,
		ThreadID:        req.ThreadID,
		StartedAt:       p.nowFunc(),
	}
	if res.Mode == "" {
		res.Mode = ModeAsync
	}
	if res.ThreadID == "" {
		res.ThreadID = ThreadIDFor(payload)
	}

	question, ok := p.question(ctx, payload)
	if !ok {
		p.skipped.Add(1)
		investigationsTotal.WithLabelValues(string(res.Mode), string(StatusSkipped)).Inc()
		res.Status = StatusSkipped
		res.FinishedAt = p.nowFunc()
		log.Info("Payload skipped by alert filter", "investigation", res.InvestigationID, "filter", p.filter.String())
		return res, nil
	}
	res.Question = question

	if res.Mode == ModeSync {
		return p.runSync(ctx, res), nil
	}
	return p.enqueue(ctx, job{result: res, payload: req.Payload})
}

// Ask answers a question directly, without normalization, notification or
// retry.
func (p *Pipeline) Ask(ctx context.Context, question, threadID string) Result {
	p.received.Add(1)
	return p.runSync(ctx, Result{
		InvestigationID: uuid.NewString(),
		Mode:            ModeSync,
		ThreadID:        threadID,
		Question:        question,
		StartedAt:       p.nowFunc(),
	})
}

// question applies the alert filter and renders what survives.
func (p *Pipeline) question(ctx context.Context, payload any) (string, bool) {
	alerts, isAlert := extractAlerts(payload)
	if !isAlert || (len(alerts) == 0 && p.filter == nil) {
		return renderGeneric(payload), true
	}
	if p.filter != nil {
		kept := alerts[:0:0]
		for _, a := range alerts {
			match, err := p.filter.Match(ctx, a)
			if err != nil {
				// Unevaluable alerts are kept; dropping them could hide an outage.
				log.Error(err, "Alert filter failed, keeping alert", "alert", a.Name(""))
				match = true
			}
			if match {
				kept = append(kept, a)
			}
		}
		alerts = kept
	}
	if len(alerts) == 0 {
		return "", false
	}
	return renderAlerts(alerts), true
}

func (p *Pipeline) runSync(ctx context.Context, res Result) Result {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	res, _ = p.attempt(ctx, res)
	res.FinishedAt = p.nowFunc()
	p.record(res)
	return res
}

func (p *Pipeline) enqueue(ctx context.Context, j job) (Result, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return Result{}, ErrClosed
	}
	select {
	case p.queue <- j:
		queueDepth.Set(float64(len(p.queue)))
		p.mu.RUnlock()
		ack := j.result
		ack.Status = StatusAccepted
		log.V(1).Info("Investigation queued", "investigation", ack.InvestigationID, "thread", ack.ThreadID)
		return ack, nil
	default:
		p.mu.RUnlock()
	}

	queueDroppedTotal.Inc()
	failed := j.result
	failed.Status = StatusFailed
	failed.Error = ErrQueueFull.Error()
	failed.FinishedAt = p.nowFunc()
	p.finish(ctx, j, failed)
	return failed, ErrQueueFull
}

// process runs one async job to its single notification.
func (p *Pipeline) process(j job) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	res := j.result
	if err := p.ctx.Err(); err != nil {
		res.Status = StatusFailed
		res.Error = "pipeline shut down before the investigation started"
		res.FinishedAt = p.nowFunc()
		p.finish(p.ctx, j, res)
		return
	}

	logger := resultLogger(res)
	backoff := wait.Backoff{
		Duration: p.cfg.RetryMinWait,
		Factor:   2,
		Jitter:   0.1,
		Steps:    p.cfg.RetryMax,
		Cap:      p.cfg.RetryMaxWait,
	}
	var lastErr error
	err := wait.ExponentialBackoffWithContext(p.ctx, backoff, func(ctx context.Context) (bool, error) {
		if res.Attempts > 0 {
			investigationRetries.Inc()
			logger.Info("Retrying investigation", "attempt", res.Attempts+1, "lastError", lastErr.Error())
		}
		var done bool
		res, done = p.attempt(ctx, res)
		if !done {
			lastErr = errors.New(res.Error)
		}
		return done, nil
	})
	if err != nil && res.Status != StatusFailed {
		res.Status = StatusFailed
		res.Error = fmt.Sprintf("investigation aborted: %v", err)
	}
	res.FinishedAt = p.nowFunc()
	p.finish(p.ctx, j, res)
}

// attempt runs the handler once. Panics become failures.
func (p *Pipeline) attempt(ctx context.Context, res Result) (out Result, done bool) {
	res.Attempts++
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("%v", r), "Investigation panicked", "investigation", res.InvestigationID)
			res.Status = StatusFailed
			res.Error = fmt.Sprintf("investigation panicked: %v", r)
			out, done = res, false
		}
	}()

	ans, err := p.handler.Handle(ctx, res.Question, res.ThreadID)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res, false
	}
	res.Status = StatusCompleted
	res.Error = ""
	res.Answer = ans.Text
	res.Agents = ans.Agents
	res.Inconclusive = ans.Inconclusive
	return res, true
}

// finish records, dead-letters and notifies an async result.
func (p *Pipeline) finish(ctx context.Context, j job, res Result) {
	p.record(res)
	logger := resultLogger(res)

	if res.Status == StatusFailed {
		p.deadLetters.Add(DeadLetter{
			InvestigationID: res.InvestigationID,
			ThreadID:        res.ThreadID,
			Payload:         j.payload,
			Question:        res.Question,
			Error:           res.Error,
			Attempts:        res.Attempts,
			FailedAt:        res.FinishedAt,
		})
		deadLetterGauge.Set(float64(p.deadLetters.Len()))
		logger.Info("Investigation failed", "attempts", res.Attempts, "error", res.Error)
	} else {
		logger.Info("Investigation completed", "attempts", res.Attempts, "agents", res.Agents, "inconclusive", res.Inconclusive)
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.notifyTimeout)
	defer cancel()
	if err := p.notifier.Send(nctx, res.Notification()); err != nil {
		// Delivery failures never change the investigation's outcome.
		logger.Error(err, "Failed to deliver notification", "notifier", p.notifier.Name())
	}
}

func (p *Pipeline) record(res Result) {
	switch res.Status {
	case StatusCompleted:
		p.completed.Add(1)
	case StatusFailed:
		p.failed.Add(1)
	}
	investigationsTotal.WithLabelValues(string(res.Mode), string(res.Status)).Inc()
	if !res.FinishedAt.IsZero() {
		investigationDuration.WithLabelValues(string(res.Mode)).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:      p.received.Load(),
		Completed:     p.completed.Load(),
		Failed:        p.failed.Load(),
		Skipped:       p.skipped.Load(),
		InFlight:      p.inFlight.Load(),
		QueueDepth:    len(p.queue),
		QueueCapacity: cap(p.queue),
		Workers:       p.cfg.Workers,
		DeadLetters:   p.deadLetters.Len(),
	}
}

// DeadLetters returns the failed async investigations, oldest first.
func (p *Pipeline) DeadLetters() []DeadLetter {
	return p.deadLetters.Items()
}

// ClearDeadLetters empties the dead-letter queue and returns how many
// entries it held.
func (p *Pipeline) ClearDeadLetters() int {
	n := p.deadLetters.Len()
	p.deadLetters.Clear()
	deadLetterGauge.Set(0)
	return n
}

// RetryDeadLetter removes the index-th dead letter (0 = oldest) and submits
// its payload again asynchronously.
func (p *Pipeline) RetryDeadLetter(ctx context.Context, index int) (Result, error) {
	dl, ok := p.deadLetters.RemoveAt(index)
	if !ok {
		return Result{}, fmt.Errorf("%w: index %d", ErrDeadLetterNotFound, index)
	}
	deadLetterGauge.Set(float64(p.deadLetters.Len()))

	res, err := p.Submit(ctx, Request{Payload: dl.Payload, Mode: ModeAsync, ThreadID: dl.ThreadID})
	if errors.Is(err, ErrClosed) {
		p.deadLetters.Add(dl)
		deadLetterGauge.Set(float64(p.deadLetters.Len()))
	}
	if err == nil {
		log.Info("Dead letter resubmitted", "previous", dl.InvestigationID, "investigation", res.InvestigationID)
	}
	return res, err
}

// Shutdown stops intake and waits for queued investigations to finish. When
// ctx expires first, running investigations are cancelled and whatever is
// still queued is notified as failed.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	if !p.started.Load() {
		// No workers: fail what was queued.
		p.cancel()
		for j := range p.queue {
			p.process(j)
		}
		queueDepth.Set(0)
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		log.Info("Investigation pipeline drained")
		return nil
	case <-ctx.Done():
		log.Info("Shutdown deadline reached, failing remaining investigations", "queued", len(p.queue))
		p.cancel()
		<-done
		queueDepth.Set(0)
		return ctx.Err()
	}
}
