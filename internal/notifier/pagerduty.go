package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutyNotifier sends notifications via PagerDuty Events API v2. Failed
// and inconclusive investigations trigger an incident; conclusive ones
// resolve the incident for the same thread.
type PagerDutyNotifier struct {
	routingKey   string
	apiURL       string
	client       *http.Client
	allowPrivate bool
}

// NewPagerDutyNotifier creates a PagerDuty notifier for an integration
// routing key.
func NewPagerDutyNotifier(routingKey string) *PagerDutyNotifier {
	p := &PagerDutyNotifier{
		routingKey: routingKey,
		apiURL:     pagerDutyEventsURL,
	}
	p.client = newSSRFSafeClient(&p.allowPrivate)
	return p
}

func (p *PagerDutyNotifier) Name() string { return "pagerduty" }

func (p *PagerDutyNotifier) Send(ctx context.Context, notification Notification) error {
	return postJSON(ctx, p.client, p.apiURL, "pagerduty", p.buildPayload(notification))
}

func (p *PagerDutyNotifier) buildPayload(n Notification) map[string]any {
	// Repeated alerts share a thread, so they collapse into one incident.
	dedupKey := "kubemedic/" + n.ThreadID
	if n.ThreadID == "" {
		dedupKey = "kubemedic/" + n.InvestigationID
	}

	eventAction := "trigger"
	if !n.Failed() && !n.Inconclusive {
		eventAction = "resolve"
	}

	return map[string]any{
		"routing_key":  p.routingKey,
		"dedup_key":    dedupKey,
		"event_action": eventAction,
		"payload": map[string]any{
			"summary":   fmt.Sprintf("%s: %s", n.Headline(), n.Summary()),
			"source":    "kube-medic",
			"severity":  p.mapSeverity(n),
			"timestamp": n.FinishedAt.UTC().Format(time.RFC3339),
			"custom_details": map[string]any{
				"investigation_id": n.InvestigationID,
				"status":           n.Status,
				"inconclusive":     n.Inconclusive,
				"question":         n.Question,
				"findings":         n.Body(),
				"agents":           n.Agents,
				"attempts":         n.Attempts,
			},
		},
	}
}

func (p *PagerDutyNotifier) mapSeverity(n Notification) string {
	switch {
	case n.Failed():
		return "error"
	case n.Inconclusive:
		return "warning"
	default:
		return "info"
	}
}
