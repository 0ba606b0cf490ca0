package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Slack section text is limited to 3000 characters.
const slackTextLimit = 2900

// SlackNotifier sends notifications formatted as Slack Block Kit messages.
type SlackNotifier struct {
	webhookURL   string
	client       *http.Client
	allowPrivate bool
}

// NewSlackNotifier creates a Slack notifier that sends Block Kit payloads.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
	}
	s.client = newSSRFSafeClient(&s.allowPrivate)
	return s
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, notification Notification) error {
	return postJSON(ctx, s.client, s.webhookURL, "slack", s.buildPayload(notification))
}

func (s *SlackNotifier) buildPayload(n Notification) map[string]any {
	var statusEmoji string
	switch {
	case n.Failed():
		statusEmoji = "\U0001f534"
	case n.Inconclusive:
		statusEmoji = "\U0001f7e1"
	default:
		statusEmoji = "\U0001f7e2"
	}

	agents := "none"
	if len(n.Agents) > 0 {
		agents = strings.Join(n.Agents, ", ")
	}

	return map[string]any{
		"text": fmt.Sprintf("%s: %s", n.Headline(), n.Summary()),
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("%s KubeMedic: %s", statusEmoji, n.Headline()),
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": "*Question*\n" + truncate(n.Question, slackTextLimit),
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": "*Findings*\n" + truncate(n.Body(), slackTextLimit),
				},
			},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Specialists*\n%s", agents)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Attempts*\n%d", n.Attempts)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Thread*\n`%s`", n.ThreadID)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Duration*\n%s", n.Duration().Round(time.Second))},
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("Investigation `%s` finished at %s", n.InvestigationID, n.FinishedAt.UTC().Format(time.RFC3339))},
				},
			},
		},
	}
}

func truncate(s string, limit int) string {
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "\n[...truncated...]"
	}
	return s
}
