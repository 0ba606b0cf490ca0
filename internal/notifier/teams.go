package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TeamsNotifier sends notifications formatted as Microsoft Teams Adaptive Cards.
type TeamsNotifier struct {
	webhookURL   string
	client       *http.Client
	allowPrivate bool
}

// NewTeamsNotifier creates a Teams notifier that sends Adaptive Card payloads.
func NewTeamsNotifier(webhookURL string) *TeamsNotifier {
	t := &TeamsNotifier{
		webhookURL: webhookURL,
	}
	t.client = newSSRFSafeClient(&t.allowPrivate)
	return t
}

func (t *TeamsNotifier) Name() string { return "teams" }

func (t *TeamsNotifier) Send(ctx context.Context, notification Notification) error {
	return postJSON(ctx, t.client, t.webhookURL, "teams", t.buildPayload(notification))
}

func (t *TeamsNotifier) buildPayload(n Notification) map[string]any {
	color := "Good"
	switch {
	case n.Failed():
		color = "Attention"
	case n.Inconclusive:
		color = "Warning"
	}

	return map[string]any{
		"type": "message",
		"attachments": []map[string]any{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]any{
					"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
					"type":    "AdaptiveCard",
					"version": "1.4",
					"body": []map[string]any{
						{
							"type":   "TextBlock",
							"size":   "Large",
							"weight": "Bolder",
							"color":  color,
							"text":   "KubeMedic: " + n.Headline(),
						},
						{
							"type":     "TextBlock",
							"text":     n.Summary(),
							"isSubtle": true,
							"wrap":     true,
						},
						{
							"type": "TextBlock",
							"text": n.Body(),
							"wrap": true,
						},
						{
							"type": "FactSet",
							"facts": []map[string]any{
								{"title": "Investigation", "value": n.InvestigationID},
								{"title": "Specialists", "value": strings.Join(n.Agents, ", ")},
								{"title": "Thread", "value": n.ThreadID},
								{"title": "Attempts", "value": fmt.Sprintf("%d", n.Attempts)},
								{"title": "Finished", "value": n.FinishedAt.UTC().Format(time.RFC3339)},
							},
						},
					},
				},
			},
		},
	}
}
