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

// Package investigation turns inbound payloads into questions, runs them
// through the supervisor inline or on a supervised worker pool, and reports
// every asynchronous outcome to the notifier.
package investigation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tranductrinh/kube-medic/internal/notifier"
	"github.com/tranductrinh/kube-medic/internal/supervisor"
)

var (
	// ErrQueueFull is returned when an async submission finds no free slot.
	// The investigation is still reported as failed.
	ErrQueueFull = errors.New("investigation queue is full")
	// ErrClosed is returned for submissions after Shutdown.
	ErrClosed = errors.New("investigation pipeline is shut down")
	// ErrDeadLetterNotFound is returned for an out-of-range dead-letter index.
	ErrDeadLetterNotFound = errors.New("dead letter not found")
)

// Mode selects inline or detached execution.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// Status is the state of an investigation as seen by the caller.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Handler answers a question within a conversation thread.
// *supervisor.Supervisor satisfies it.
type Handler interface {
	Handle(ctx context.Context, question, threadID string) (supervisor.Answer, error)
	Ready() bool
}

// Request is one inbound investigation.
type Request struct {
	// Payload is any JSON value.
	Payload json.RawMessage
	Mode    Mode
	// ThreadID scopes conversation memory. When empty a deterministic id is
	// derived from the payload.
	ThreadID string
}

// Result is the outcome of an investigation, or the acknowledgment of an
// async submission.
type Result struct {
	InvestigationID string    `json:"investigationId"`
	Status          Status    `json:"status"`
	Mode            Mode      `json:"mode"`
	ThreadID        string    `json:"threadId"`
	Question        string    `json:"question,omitempty"`
	Answer          string    `json:"answer,omitempty"`
	Error           string    `json:"error,omitempty"`
	Inconclusive    bool      `json:"inconclusive"`
	Agents          []string  `json:"agents,omitempty"`
	Attempts        int       `json:"attempts"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt,omitzero"`
}

// Text is what a synchronous caller shows: the answer, or a description of
// why there is none.
func (r Result) Text() string {
	switch r.Status {
	case StatusFailed:
		return "Investigation failed: " + r.Error
	case StatusSkipped:
		return "No actionable alerts in payload"
	case StatusAccepted:
		return "Investigation accepted"
	default:
		return r.Answer
	}
}

// Notification converts a finished result for delivery.
func (r Result) Notification() notifier.Notification {
	status := notifier.StatusCompleted
	if r.Status == StatusFailed {
		status = notifier.StatusFailed
	}
	return notifier.Notification{
		InvestigationID: r.InvestigationID,
		Status:          status,
		Inconclusive:    r.Inconclusive,
		Question:        r.Question,
		Answer:          r.Answer,
		Error:           r.Error,
		Mode:            string(r.Mode),
		ThreadID:        r.ThreadID,
		Agents:          r.Agents,
		Attempts:        r.Attempts,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
}

// DeadLetter is an async investigation that failed after all retries.
type DeadLetter struct {
	InvestigationID string          `json:"investigationId"`
	ThreadID        string          `json:"threadId"`
	Payload         json.RawMessage `json:"payload"`
	Question        string          `json:"question"`
	Error           string          `json:"error"`
	Attempts        int             `json:"attempts"`
	FailedAt        time.Time       `json:"failedAt"`
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Received      int64 `json:"received"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Skipped       int64 `json:"skipped"`
	InFlight      int64 `json:"inFlight"`
	QueueDepth    int   `json:"queueDepth"`
	QueueCapacity int   `json:"queueCapacity"`
	Workers       int   `json:"workers"`
	DeadLetters   int   `json:"deadLetters"`
}

// Config tunes the async worker pool.
type Config struct {
	QueueSize      int           `yaml:"queueSize"`
	Workers        int           `yaml:"workers"`
	RetryMax       int           `yaml:"retryMax"`
	RetryMinWait   time.Duration `yaml:"retryMinWait"`
	RetryMaxWait   time.Duration `yaml:"retryMaxWait"`
	DeadLetterSize int           `yaml:"deadLetterSize"`
	// AlertFilter is an optional CEL expression evaluated per alert.
	AlertFilter string `yaml:"alertFilter"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:      64,
		Workers:        2,
		RetryMax:       3,
		RetryMinWait:   2 * time.Second,
		RetryMaxWait:   30 * time.Second,
		DeadLetterSize: 100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 1
	}
	if c.RetryMinWait <= 0 {
		c.RetryMinWait = d.RetryMinWait
	}
	if c.RetryMaxWait < c.RetryMinWait {
		c.RetryMaxWait = c.RetryMinWait
	}
	if c.DeadLetterSize <= 0 {
		c.DeadLetterSize = d.DeadLetterSize
	}
	return c
}
