package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTeamsNotifier_Send(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"successful POST returns no error", http.StatusOK, false},
		{"server error returns error", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			tn := NewTeamsNotifier(srv.URL)
			tn.allowPrivate = true
			err := tn.Send(context.Background(), completedNotification())
			if (err != nil) != tt.wantErr {
				t.Errorf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTeamsNotifier_AdaptiveCard(t *testing.T) {
	srv, body := captureServer(t)

	tn := NewTeamsNotifier(srv.URL)
	tn.allowPrivate = true
	if err := tn.Send(context.Background(), failedNotification()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got := body()

	if got["type"] != "message" {
		t.Errorf("type = %v, want message", got["type"])
	}
	attachments := got["attachments"].([]any)
	if len(attachments) != 1 {
		t.Fatalf("attachments length = %d, want 1", len(attachments))
	}
	attachment := attachments[0].(map[string]any)
	if attachment["contentType"] != "application/vnd.microsoft.card.adaptive" {
		t.Errorf("contentType = %v", attachment["contentType"])
	}

	card := attachment["content"].(map[string]any)
	cardBody := card["body"].([]any)
	if len(cardBody) != 4 {
		t.Fatalf("card body length = %d, want 4", len(cardBody))
	}
	title := cardBody[0].(map[string]any)
	if title["text"] != "KubeMedic: Investigation failed" || title["color"] != "Attention" {
		t.Errorf("title = %v", title)
	}
	if text := cardBody[2].(map[string]any)["text"]; text != "model provider unavailable" {
		t.Errorf("body text = %v, want the error", text)
	}

	facts := cardBody[3].(map[string]any)["facts"].([]any)
	if len(facts) != 5 {
		t.Fatalf("facts length = %d, want 5", len(facts))
	}
	if attempts := facts[3].(map[string]any); attempts["title"] != "Attempts" || attempts["value"] != "3" {
		t.Errorf("attempts fact = %v", attempts)
	}
}

func TestTeamsNotifier_Color(t *testing.T) {
	inconclusive := completedNotification()
	inconclusive.Inconclusive = true

	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{"completed", completedNotification(), "Good"},
		{"inconclusive", inconclusive, "Warning"},
		{"failed", failedNotification(), "Attention"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := NewTeamsNotifier("https://outlook.office.com/x").buildPayload(tt.n)
			content := payload["attachments"].([]map[string]any)[0]["content"].(map[string]any)
			color := content["body"].([]map[string]any)[0]["color"]
			if color != tt.want {
				t.Errorf("color = %v, want %s", color, tt.want)
			}
		})
	}
}

func TestTeamsNotifier_Name(t *testing.T) {
	if got := NewTeamsNotifier("https://example.com").Name(); got != "teams" {
		t.Errorf("Name() = %q, want teams", got)
	}
}
