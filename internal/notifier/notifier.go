// Package notifier delivers investigation results to operators.
package notifier

import (
	"context"
	"strings"
	"time"
)

// Status is the terminal state of an investigation.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const contentTypeJSON = "application/json"

// Notification describes one finished investigation.
type Notification struct {
	// InvestigationID uniquely identifies the investigation
	InvestigationID string `json:"investigationId"`
	// Status is completed when an answer was produced, failed otherwise
	Status Status `json:"status"`
	// Inconclusive is set when at least one specialist stopped early
	Inconclusive bool `json:"inconclusive"`
	// Question is the normalized question that was investigated
	Question string `json:"question"`
	// Answer is the final answer text (completed only)
	Answer string `json:"answer,omitempty"`
	// Error describes why the investigation failed (failed only)
	Error string `json:"error,omitempty"`
	// Mode is sync or async
	Mode string `json:"mode"`
	// ThreadID is the conversation thread the investigation used
	ThreadID string `json:"threadId,omitempty"`
	// Agents lists the specialists that ran, in order
	Agents []string `json:"agents,omitempty"`
	// Attempts is how many times the investigation was tried
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Failed reports whether no answer was produced.
func (n Notification) Failed() bool {
	return n.Status == StatusFailed
}

// Headline is a short status line used in subjects and message headers.
func (n Notification) Headline() string {
	switch {
	case n.Failed():
		return "Investigation failed"
	case n.Inconclusive:
		return "Investigation inconclusive"
	default:
		return "Investigation completed"
	}
}

// Summary is the first line of the question, shortened for subject lines.
func (n Notification) Summary() string {
	line, _, _ := strings.Cut(strings.TrimSpace(n.Question), "\n")
	line = strings.TrimSpace(strings.TrimPrefix(line, "ALERT:"))
	const maxLen = 80
	if r := []rune(line); len(r) > maxLen {
		return string(r[:maxLen-3]) + "..."
	}
	return line
}

// Body is the answer for completed investigations and the error otherwise.
func (n Notification) Body() string {
	if n.Failed() {
		return n.Error
	}
	return n.Answer
}

// Duration is how long the investigation ran.
func (n Notification) Duration() time.Duration {
	if n.StartedAt.IsZero() || n.FinishedAt.Before(n.StartedAt) {
		return 0
	}
	return n.FinishedAt.Sub(n.StartedAt)
}

// Notifier is the interface for sending investigation notifications
type Notifier interface {
	// Name returns the notifier identifier
	Name() string
	// Send dispatches a notification
	Send(ctx context.Context, notification Notification) error
}
