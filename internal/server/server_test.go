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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tranductrinh/kube-medic/internal/investigation"
	"github.com/tranductrinh/kube-medic/internal/memory"
)

type fakePipeline struct {
	mu        sync.Mutex
	submitted []investigation.Request
	asked     [][2]string
	submitRes investigation.Result
	submitErr error
	askRes    investigation.Result
	dead      []investigation.DeadLetter
	retryErr  error
	ready     bool
}

func (f *fakePipeline) Submit(_ context.Context, req investigation.Request) (investigation.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	res := f.submitRes
	res.Mode = req.Mode
	if res.ThreadID == "" {
		res.ThreadID = req.ThreadID
	}
	return res, f.submitErr
}

func (f *fakePipeline) Ask(_ context.Context, question, threadID string) investigation.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, [2]string{question, threadID})
	return f.askRes
}

func (f *fakePipeline) Ready() bool { return f.ready }

func (f *fakePipeline) Stats() investigation.Stats {
	return investigation.Stats{Received: 4, Completed: 3, Failed: 1, QueueCapacity: 64, Workers: 2, DeadLetters: len(f.dead)}
}

func (f *fakePipeline) DeadLetters() []investigation.DeadLetter { return f.dead }

func (f *fakePipeline) ClearDeadLetters() int {
	n := len(f.dead)
	f.dead = nil
	return n
}

func (f *fakePipeline) RetryDeadLetter(_ context.Context, index int) (investigation.Result, error) {
	if f.retryErr != nil {
		return investigation.Result{}, f.retryErr
	}
	if index >= len(f.dead) {
		return investigation.Result{}, investigation.ErrDeadLetterNotFound
	}
	return investigation.Result{Status: investigation.StatusAccepted, InvestigationID: "retry-1", ThreadID: f.dead[index].ThreadID}, nil
}

type fakeMemory struct{}

func (fakeMemory) Stats() memory.Stats { return memory.Stats{Backend: "memory", Threads: 2, Turns: 8} }

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
	return out
}

// ---------------------------------------------------------------------------
// Public endpoints
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	s := New(&fakePipeline{ready: true}, Config{})
	rr := do(t, s.Handler(), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d", rr.Code)
	}
	got := decode(t, rr)
	if got["status"] != "ok" || got["agentReady"] != true {
		t.Errorf("GET /health = %v", got)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestWebhook(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     investigation.Result
		err        error
		wantStatus int
		wantField  string
		wantValue  any
	}{
		{
			name:       "accepted",
			body:       `{"alerts":[]}`,
			result:     investigation.Result{Status: investigation.StatusAccepted, InvestigationID: "inv-1", ThreadID: "webhook-abc"},
			wantStatus: http.StatusAccepted,
			wantField:  "threadId",
			wantValue:  "webhook-abc",
		},
		{
			name:       "skipped",
			body:       `{"alerts":[{"labels":{"severity":"info"}}]}`,
			result:     investigation.Result{Status: investigation.StatusSkipped, InvestigationID: "inv-2"},
			wantStatus: http.StatusOK,
			wantField:  "status",
			wantValue:  "skipped",
		},
		{
			name:       "queue full",
			body:       `{}`,
			result:     investigation.Result{Status: investigation.StatusFailed},
			err:        investigation.ErrQueueFull,
			wantStatus: http.StatusServiceUnavailable,
			wantField:  "error",
			wantValue:  investigation.ErrQueueFull.Error(),
		},
		{
			name:       "invalid json",
			body:       `{"alerts":`,
			wantStatus: http.StatusBadRequest,
			wantField:  "error",
			wantValue:  "invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{submitRes: tt.result, submitErr: tt.err}
			rr := do(t, New(p, Config{}).Handler(), http.MethodPost, "/webhook", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("POST /webhook status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if got := decode(t, rr)[tt.wantField]; got != tt.wantValue {
				t.Errorf("%s = %v, want %v", tt.wantField, got, tt.wantValue)
			}
		})
	}
}

func TestWebhook_PassesModeAndThread(t *testing.T) {
	p := &fakePipeline{submitRes: investigation.Result{Status: investigation.StatusAccepted}}
	h := New(p, Config{}).Handler()

	do(t, h, http.MethodPost, "/webhook?threadId=incident-9", `{"a":1}`)
	if len(p.submitted) != 1 {
		t.Fatalf("submitted = %d, want 1", len(p.submitted))
	}
	req := p.submitted[0]
	if req.Mode != investigation.ModeAsync || req.ThreadID != "incident-9" || string(req.Payload) != `{"a":1}` {
		t.Errorf("submitted request = %+v", req)
	}
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	p := &fakePipeline{}
	big := `{"x":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rr := do(t, New(p, Config{}).Handler(), http.MethodPost, "/webhook", big)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rr.Code)
	}
	if len(p.submitted) != 0 {
		t.Error("oversized body should not be submitted")
	}
}

func TestWebhookSync(t *testing.T) {
	p := &fakePipeline{submitRes: investigation.Result{
		Status:          investigation.StatusCompleted,
		InvestigationID: "inv-3",
		ThreadID:        "webhook-123",
		Answer:          "api-0 is OOMKilled",
		Inconclusive:    true,
	}}
	rr := do(t, New(p, Config{}).Handler(), http.MethodPost, "/webhook/sync", `{"labels":{"alertname":"X"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /webhook/sync status = %d", rr.Code)
	}
	got := decode(t, rr)
	if got["response"] != "api-0 is OOMKilled" || got["threadId"] != "webhook-123" || got["status"] != "completed" || got["inconclusive"] != true {
		t.Errorf("POST /webhook/sync = %v", got)
	}
	if p.submitted[0].Mode != investigation.ModeSync {
		t.Errorf("mode = %s, want sync", p.submitted[0].Mode)
	}
}

func TestWebhookSync_FailureStillAnswers(t *testing.T) {
	p := &fakePipeline{submitRes: investigation.Result{Status: investigation.StatusFailed, Error: "model provider unavailable"}}
	rr := do(t, New(p, Config{}).Handler(), http.MethodPost, "/webhook/sync", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decode(t, rr)["response"]; got != "Investigation failed: model provider unavailable" {
		t.Errorf("response = %v", got)
	}
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantThread string
	}{
		{"default thread", `{"question":"Why is api-0 restarting?"}`, http.StatusOK, "default"},
		{"explicit thread", `{"question":"And now?","threadId":"t-7"}`, http.StatusOK, "t-7"},
		{"blank question", `{"question":"   "}`, http.StatusBadRequest, ""},
		{"missing question", `{}`, http.StatusBadRequest, ""},
		{"invalid json", `question`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{askRes: investigation.Result{Status: investigation.StatusCompleted, Answer: "OOMKilled"}}
			rr := do(t, New(p, Config{}).Handler(), http.MethodPost, "/query", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("POST /query status = %d, want %d", rr.Code, tt.wantStatus)
			}
			got := decode(t, rr)
			if tt.wantStatus != http.StatusOK {
				if got["error"] == nil {
					t.Errorf("error body missing: %v", got)
				}
				return
			}
			if got["response"] != "OOMKilled" || got["threadId"] != tt.wantThread {
				t.Errorf("POST /query = %v", got)
			}
			if p.asked[0][1] != tt.wantThread {
				t.Errorf("asked thread = %s, want %s", p.asked[0][1], tt.wantThread)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rr := do(t, New(&fakePipeline{}, Config{}).Handler(), http.MethodGet, "/webhook", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /webhook status = %d, want 405", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := do(t, New(&fakePipeline{}, Config{}).Handler(), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestRateLimit_PerClient(t *testing.T) {
	p := &fakePipeline{askRes: investigation.Result{Status: investigation.StatusCompleted, Answer: "ok"}}
	h := New(p, Config{RateLimit: 1, RateBurst: 2}).Handler()

	post := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"hi"}`))
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := range 2 {
		if code := post("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, code)
		}
	}
	if code := post("10.0.0.1:5555"); code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", code)
	}
	if code := post("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", code)
	}
}

func TestClientLimiter_SweepsIdleClients(t *testing.T) {
	l := newClientLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(limiterIdleTTL + time.Minute)
	for i := range limiterSweepEvery {
		l.Allow(fmt.Sprintf("c-%d", i%3))
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3 after sweep", l.Len())
	}
}

// ---------------------------------------------------------------------------
// Admin endpoints
// ---------------------------------------------------------------------------

func TestAdmin_Auth(t *testing.T) {
	h := New(&fakePipeline{}, Config{AuthToken: "s3cret"}).Handler()

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"wrong scheme", []string{"Authorization", "Basic s3cret"}, http.StatusUnauthorized},
		{"wrong token", []string{"Authorization", "Bearer nope"}, http.StatusForbidden},
		{"valid token", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, "/admin/stats", "", tt.header...)
			if rr.Code != tt.want {
				t.Errorf("GET /admin/stats status = %d, want %d", rr.Code, tt.want)
			}
		})
	}

	// Public routes stay open.
	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("GET /health status = %d with auth configured", rr.Code)
	}
}

func TestAdmin_Stats(t *testing.T) {
	h := New(&fakePipeline{}, Config{}, WithMemoryStats(fakeMemory{})).Handler()
	rr := do(t, h, http.MethodGet, "/admin/stats", "")

	var got statsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Pipeline.Received != 4 || got.Pipeline.Workers != 2 {
		t.Errorf("pipeline stats = %+v", got.Pipeline)
	}
	if got.Memory == nil || got.Memory.Threads != 2 {
		t.Errorf("memory stats = %+v", got.Memory)
	}
}

func TestAdmin_DeadLetters(t *testing.T) {
	p := &fakePipeline{dead: []investigation.DeadLetter{
		{InvestigationID: "inv-1", ThreadID: "webhook-1", Payload: json.RawMessage(`{"a":1}`), Error: "timeout", Attempts: 3},
		{InvestigationID: "inv-2", ThreadID: "webhook-2", Payload: json.RawMessage(`{"a":2}`), Error: "timeout", Attempts: 3},
	}}
	h := New(p, Config{}).Handler()

	rr := do(t, h, http.MethodGet, "/admin/failed-webhooks", "")
	list := decode(t, rr)
	if list["count"] != float64(2) {
		t.Errorf("count = %v, want 2", list["count"])
	}

	rr = do(t, h, http.MethodPost, "/admin/retry-webhook/1", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("retry status = %d (%s)", rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["threadId"]; got != "webhook-2" {
		t.Errorf("retry threadId = %v", got)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/admin/retry-webhook/9", http.StatusNotFound},
		{"/admin/retry-webhook/-1", http.StatusBadRequest},
		{"/admin/retry-webhook/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rr := do(t, h, http.MethodPost, tt.path, ""); rr.Code != tt.want {
			t.Errorf("POST %s status = %d, want %d", tt.path, rr.Code, tt.want)
		}
	}

	rr = do(t, h, http.MethodDelete, "/admin/failed-webhooks", "")
	if got := decode(t, rr)["cleared"]; got != float64(2) {
		t.Errorf("cleared = %v, want 2", got)
	}
	rr = do(t, h, http.MethodGet, "/admin/failed-webhooks", "")
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"failed":[]`)) {
		t.Errorf("empty list should encode as [], got %s", rr.Body.String())
	}
}

func TestAdmin_RetryQueueFull(t *testing.T) {
	p := &fakePipeline{retryErr: investigation.ErrQueueFull}
	rr := do(t, New(p, Config{}).Handler(), http.MethodPost, "/admin/retry-webhook/0", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := New(&fakePipeline{}, Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
