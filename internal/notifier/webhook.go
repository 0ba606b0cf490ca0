package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// postJSON marshals payload and POSTs it, treating any non-2xx response as
// an error. service names the receiver in error messages.
func postJSON(ctx context.Context, client *http.Client, target, service string, payload any) error {
	if err := validateWebhookURL(target); err != nil {
		return fmt.Errorf("SSRF protection: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("User-Agent", "kube-medic")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s notification: %w", service, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", service, resp.StatusCode)
	}
	return nil
}

// WebhookNotifier POSTs the notification as JSON to a URL.
// Compatible with Mattermost, Discord relays, and any HTTP endpoint.
type WebhookNotifier struct {
	url          string
	client       *http.Client
	allowPrivate bool // skip SSRF check (testing only)
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	w := &WebhookNotifier{url: webhookURL}
	w.client = newSSRFSafeClient(&w.allowPrivate)
	return w
}

func (w *WebhookNotifier) Name() string {
	return "webhook"
}

func (w *WebhookNotifier) Send(ctx context.Context, notification Notification) error {
	return postJSON(ctx, w.client, w.url, "webhook", notification)
}
