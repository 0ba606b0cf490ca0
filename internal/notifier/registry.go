package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kubemedic_notifications_total",
		Help: "Notification deliveries by notifier and result",
	},
	[]string{"notifier", "result"},
)

func init() {
	metrics.Registry.MustRegister(notificationsTotal)
}

// Registry fans a notification out to every registered notifier
type Registry struct {
	notifiers []Notifier
}

// NewRegistry creates a registry holding notifiers
func NewRegistry(notifiers ...Notifier) *Registry {
	r := &Registry{}
	for _, n := range notifiers {
		r.Register(n)
	}
	return r
}

// Register adds a notifier. A nil notifier is ignored.
func (r *Registry) Register(n Notifier) {
	if n == nil {
		return
	}
	r.notifiers = append(r.notifiers, n)
}

// Send sends a notification through all registered notifiers.
// Errors are logged but do not stop other notifiers from firing; the first
// one is returned.
func (r *Registry) Send(ctx context.Context, notification Notification) error {
	var firstErr error
	for _, n := range r.notifiers {
		if err := n.Send(ctx, notification); err != nil {
			notificationsTotal.WithLabelValues(n.Name(), "error").Inc()
			slog.Error("notifier failed", "notifier", n.Name(), "investigation", notification.InvestigationID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("notifier %s: %w", n.Name(), err)
			}
			continue
		}
		notificationsTotal.WithLabelValues(n.Name(), "success").Inc()
	}
	return firstErr
}

// Name lets a Registry be nested as a Notifier.
func (r *Registry) Name() string {
	return "registry"
}

// Names returns the registered notifier names in order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Len returns the number of registered notifiers
func (r *Registry) Len() int {
	return len(r.notifiers)
}
