package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"-" yaml:"password"`
	// UseTLS upgrades plain connections with STARTTLS. Port 465 always uses
	// implicit TLS.
	UseTLS bool `json:"useTLS" yaml:"useTLS"`
}

// Report is the structured investigation report sent by the email
// specialist.
type Report struct {
	Summary        string
	RootCause      string
	Evidence       string
	RecommendedFix string
}

// EmailNotifier sends HTML email over SMTP.
type EmailNotifier struct {
	smtp    SMTPConfig
	from    string
	to      []string
	nowFunc func() time.Time
}

// NewEmailNotifier validates the configuration and creates a notifier.
func NewEmailNotifier(cfg SMTPConfig, from string, to []string) (*EmailNotifier, error) {
	var problems []string
	if cfg.Host == "" {
		problems = append(problems, "SMTP host is not set")
	}
	if from == "" {
		problems = append(problems, "sender address is not set")
	}
	var recipients []string
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		problems = append(problems, "no recipients configured")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("email not configured: %s", strings.Join(problems, "; "))
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailNotifier{smtp: cfg, from: from, to: recipients, nowFunc: time.Now}, nil
}

func (e *EmailNotifier) Name() string { return "email" }

// Recipients returns the configured recipient addresses.
func (e *EmailNotifier) Recipients() []string {
	return append([]string(nil), e.to...)
}

// Send emails an investigation result.
func (e *EmailNotifier) Send(ctx context.Context, n Notification) error {
	var body bytes.Buffer
	if err := notificationTemplate.Execute(&body, notificationView{Notification: n, Duration: n.Duration().Round(time.Second)}); err != nil {
		return fmt.Errorf("render notification email: %w", err)
	}
	return e.deliver(ctx, fmt.Sprintf("[KubeMedic] %s: %s", n.Headline(), n.Summary()), body.Bytes())
}

// SendReport emails a structured investigation report.
func (e *EmailNotifier) SendReport(ctx context.Context, r Report) error {
	var body bytes.Buffer
	if err := reportTemplate.Execute(&body, r); err != nil {
		return fmt.Errorf("render report email: %w", err)
	}
	return e.deliver(ctx, "[KubeMedic] "+r.Summary, body.Bytes())
}

func (e *EmailNotifier) deliver(ctx context.Context, subject string, html []byte) error {
	msg, err := e.buildMessage(subject, html)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(e.smtp.Host, strconv.Itoa(e.smtp.Port))
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = e.nowFunc().Add(sendTimeout)
	}
	dialer := &net.Dialer{Deadline: deadline}

	var conn net.Conn
	if e.smtp.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: e.smtp.Host, MinVersion: tls.VersionTLS12}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect to SMTP server %s: %w", addr, err)
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, e.smtp.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("SMTP handshake with %s: %w", addr, err)
	}
	defer func() { _ = c.Close() }()

	if e.smtp.UseTLS && e.smtp.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("SMTP server does not support STARTTLS")
		}
		if err := c.StartTLS(&tls.Config{ServerName: e.smtp.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if e.smtp.Username != "" && e.smtp.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", e.smtp.Username, e.smtp.Password, e.smtp.Host)); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := c.Mail(e.from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range e.to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

func (e *EmailNotifier) buildMessage(subject string, html []byte) ([]byte, error) {
	subject = strings.Join(strings.Fields(subject), " ")

	var msg bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&msg, "%s: %s\r\n", k, v) }
	header("From", e.from)
	header("To", strings.Join(e.to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", e.nowFunc().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	msg.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&msg)
	if _, err := qp.Write(html); err != nil {
		return nil, fmt.Errorf("encode message body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode message body: %w", err)
	}
	return msg.Bytes(), nil
}

type notificationView struct {
	Notification
	Duration time.Duration
}

const emailHead = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="margin:0;padding:0;font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;background-color:#f5f5f5;">
<table role="presentation" width="100%" cellspacing="0" cellpadding="0"><tr><td align="center" style="padding:32px 16px;">
<table role="presentation" width="640" cellspacing="0" cellpadding="0" style="background-color:#ffffff;border-radius:8px;">
<tr><td style="background-color:#1a73e8;padding:24px 32px;border-radius:8px 8px 0 0;">
<h1 style="margin:0;color:#ffffff;font-size:22px;">KubeMedic</h1>`

const emailFoot = `<tr><td style="padding:16px 32px;border-top:1px solid #e0e0e0;color:#9e9e9e;font-size:12px;text-align:center;">
This report was generated automatically by KubeMedic.
</td></tr>
</table></td></tr></table>
</body>
</html>`

// Section colors per report part: blue summary, red cause, grey evidence,
// green fix.
var reportTemplate = template.Must(template.New("report").Parse(emailHead + `
<p style="margin:6px 0 0 0;color:#e3f2fd;font-size:14px;">Investigation Report</p></td></tr>
<tr><td style="padding:24px 32px 8px 32px;"><div class="summary" style="border-left:4px solid #1a73e8;background-color:#e3f2fd;padding:14px 18px;">
<h2 style="margin:0 0 6px 0;font-size:12px;color:#1a73e8;text-transform:uppercase;">Summary</h2>
<p style="margin:0;font-size:16px;">{{.Summary}}</p></div></td></tr>
<tr><td style="padding:8px 32px;"><div class="root-cause" style="border-left:4px solid #c62828;background-color:#fce4ec;padding:14px 18px;">
<h2 style="margin:0 0 6px 0;font-size:12px;color:#c62828;text-transform:uppercase;">Root Cause</h2>
<p style="margin:0;font-size:14px;">{{.RootCause}}</p></div></td></tr>
<tr><td style="padding:8px 32px;"><div class="evidence" style="border-left:4px solid #616161;background-color:#f5f5f5;padding:14px 18px;">
<h2 style="margin:0 0 6px 0;font-size:12px;color:#616161;text-transform:uppercase;">Evidence</h2>
<p style="margin:0;font-size:14px;white-space:pre-wrap;">{{.Evidence}}</p></div></td></tr>
<tr><td style="padding:8px 32px 24px 32px;"><div class="fix" style="border-left:4px solid #2e7d32;background-color:#e8f5e9;padding:14px 18px;">
<h2 style="margin:0 0 6px 0;font-size:12px;color:#2e7d32;text-transform:uppercase;">Recommended Fix</h2>
<pre style="margin:0;font-size:13px;white-space:pre-wrap;word-wrap:break-word;">{{.RecommendedFix}}</pre></div></td></tr>
` + emailFoot))

var notificationTemplate = template.Must(template.New("notification").Parse(emailHead + `
<p style="margin:6px 0 0 0;color:#e3f2fd;font-size:14px;">{{.Headline}}</p></td></tr>
<tr><td style="padding:24px 32px 8px 32px;"><div class="question" style="border-left:4px solid #1a73e8;background-color:#e3f2fd;padding:14px 18px;">
<h2 style="margin:0 0 6px 0;font-size:12px;color:#1a73e8;text-transform:uppercase;">Question</h2>
<p style="margin:0;font-size:14px;white-space:pre-wrap;">{{.Question}}</p></div></td></tr>
{{if .Failed}}<tr><td style="padding:8px 32px;"><div class="error" style="border-left:4px solid #c62828;background-color:#fce4ec;padding:14px 18px;">
<h2 style="margin:0 0 6px 0;font-size:12px;color:#c62828;text-transform:uppercase;">Error</h2>
<p style="margin:0;font-size:14px;white-space:pre-wrap;">{{.Error}}</p></div></td></tr>
{{else}}<tr><td style="padding:8px 32px;"><div class="answer" style="border-left:4px solid {{if .Inconclusive}}#f9a825{{else}}#2e7d32{{end}};padding:14px 18px;">
<h2 style="margin:0 0 6px 0;font-size:12px;text-transform:uppercase;">Findings</h2>
<p style="margin:0;font-size:14px;white-space:pre-wrap;">{{.Answer}}</p></div></td></tr>
{{end}}<tr><td style="padding:8px 32px 24px 32px;font-size:12px;color:#616161;">
<table class="details" role="presentation" cellspacing="0" cellpadding="2">
<tr><td>Investigation</td><td>{{.InvestigationID}}</td></tr>
<tr><td>Mode</td><td>{{.Mode}}</td></tr>
<tr><td>Thread</td><td>{{.ThreadID}}</td></tr>
<tr><td>Specialists</td><td>{{range $i, $a := .Agents}}{{if $i}}, {{end}}{{$a}}{{else}}none{{end}}</td></tr>
<tr><td>Attempts</td><td>{{.Attempts}}</td></tr>
<tr><td>Duration</td><td>{{.Duration}}</td></tr>
</table></td></tr>
` + emailFoot))
