package notifier

import (
	"context"
	"sync"
)

// RecordingNotifier keeps every notification it receives. Tests use it to
// assert delivery; with no other notifier configured it also keeps results
// observable in-process.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	// Err, when set, is returned from Send after recording.
	Err error
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Name() string {
	return "recording"
}

func (n *RecordingNotifier) Send(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.Err
}

// Sent returns a copy of the recorded notifications.
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// Len returns how many notifications were recorded.
func (n *RecordingNotifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
