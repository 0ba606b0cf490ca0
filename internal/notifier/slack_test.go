package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSlackNotifier_Send(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"successful POST returns no error", http.StatusOK, false},
		{"server error returns error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			s := NewSlackNotifier(srv.URL)
			s.allowPrivate = true
			err := s.Send(context.Background(), completedNotification())
			if (err != nil) != tt.wantErr {
				t.Errorf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlackNotifier_PayloadStructure(t *testing.T) {
	srv, body := captureServer(t)

	s := NewSlackNotifier(srv.URL)
	s.allowPrivate = true
	if err := s.Send(context.Background(), completedNotification()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got := body()

	if text := got["text"].(string); text != "Investigation completed: KubePodCrashLooping" {
		t.Errorf("fallback text = %q", text)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("payload missing 'blocks' array")
	}
	if len(blocks) != 5 {
		t.Fatalf("blocks length = %d, want 5", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if headerText != "\U0001f7e2 KubeMedic: Investigation completed" {
		t.Errorf("header text = %q", headerText)
	}

	findings := blocks[2].(map[string]any)["text"].(map[string]any)["text"].(string)
	if !strings.HasPrefix(findings, "*Findings*\n") || !strings.Contains(findings, "DATABASE_URL") {
		t.Errorf("findings section = %q", findings)
	}

	fields := blocks[3].(map[string]any)["fields"].([]any)
	if len(fields) != 4 {
		t.Fatalf("fields length = %d, want 4", len(fields))
	}
	if f := fields[0].(map[string]any)["text"].(string); f != "*Specialists*\nkubernetes, prometheus" {
		t.Errorf("specialists field = %q", f)
	}
	if f := fields[3].(map[string]any)["text"].(string); f != "*Duration*\n42s" {
		t.Errorf("duration field = %q", f)
	}

	if ctxBlock := blocks[4].(map[string]any); ctxBlock["type"] != "context" {
		t.Errorf("last block type = %v, want context", ctxBlock["type"])
	}
}

func TestSlackNotifier_StatusEmoji(t *testing.T) {
	inconclusive := completedNotification()
	inconclusive.Inconclusive = true

	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{"completed is green", completedNotification(), "\U0001f7e2"},
		{"inconclusive is yellow", inconclusive, "\U0001f7e1"},
		{"failed is red", failedNotification(), "\U0001f534"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := NewSlackNotifier("https://hooks.slack.com/x").buildPayload(tt.n)
			header := payload["blocks"].([]map[string]any)[0]["text"].(map[string]any)["text"].(string)
			if !strings.HasPrefix(header, tt.want) {
				t.Errorf("header = %q, want prefix %q", header, tt.want)
			}
		})
	}
}

func TestSlackNotifier_TruncatesLongFindings(t *testing.T) {
	n := completedNotification()
	n.Answer = strings.Repeat("a", slackTextLimit+500)

	payload := NewSlackNotifier("https://hooks.slack.com/x").buildPayload(n)
	findings := payload["blocks"].([]map[string]any)[2]["text"].(map[string]any)["text"].(string)
	if !strings.HasSuffix(findings, "[...truncated...]") {
		t.Errorf("findings should be truncated, got suffix %q", findings[len(findings)-20:])
	}
	if len(findings) > 3000 {
		t.Errorf("findings length = %d, want <= 3000", len(findings))
	}
}

func TestSlackNotifier_SSRFProtection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlackNotifier(srv.URL)
	err := s.Send(context.Background(), completedNotification())
	if err == nil {
		t.Fatal("expected SSRF error for loopback address, got nil")
	}
	if !strings.Contains(err.Error(), "SSRF protection") {
		t.Errorf("error = %q, want to contain 'SSRF protection'", err.Error())
	}
}

func TestSlackNotifier_RedirectNotFollowed(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("redirect was followed, request reached target server")
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/webhook", http.StatusFound)
	}))
	defer redirector.Close()

	s := NewSlackNotifier(redirector.URL)
	s.allowPrivate = true
	err := s.Send(context.Background(), completedNotification())
	if err == nil {
		t.Fatal("expected error for redirect response, got nil")
	}
	if !strings.Contains(err.Error(), "status 302") {
		t.Errorf("error = %q, want to contain 'status 302'", err.Error())
	}
}

func TestSlackNotifier_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlackNotifier(srv.URL)
	s.allowPrivate = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Send(ctx, completedNotification()); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
