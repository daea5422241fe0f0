package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/slack-go/slack"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

// Sink delivers one alert notification to an external channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, a *event.AlertEvent) error
}

// --- Slack ---

// SlackSink posts alerts to an incoming-webhook URL with a severity-colored
// attachment.
type SlackSink struct {
	webhookURL string
}

// NewSlackSink builds a Slack sink for webhookURL.
func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{webhookURL: webhookURL}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Send(ctx context.Context, a *event.AlertEvent) error {
	title := fmt.Sprintf("[%s] %s", a.Severity, a.AlertType)
	if a.Status.Resolved() {
		title = fmt.Sprintf("[RESOLVED] %s", a.AlertType)
	}

	attachment := slack.Attachment{
		Color: a.Severity.Color(),
		Title: title,
		Text:  a.Message,
		Fields: []slack.AttachmentField{
			{Title: "Service", Value: a.ServiceName, Short: true},
			{Title: "Severity", Value: string(a.Severity), Short: true},
			{Title: "Status", Value: string(a.Status), Short: true},
			{Title: "Current", Value: fmt.Sprintf("%.2f", a.CurrentValue), Short: true},
			{Title: "Threshold", Value: fmt.Sprintf("%.2f", a.ThresholdValue), Short: true},
			{Title: "Triggered", Value: a.TriggeredAt.Format("2006-01-02T15:04:05"), Short: true},
		},
		Footer: a.AlertID,
	}
	if a.RunbookURL != "" {
		attachment.TitleLink = a.RunbookURL
	}

	msg := &slack.WebhookMessage{Attachments: []slack.Attachment{attachment}}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

// --- Email ---

// EmailSink sends plain-text alert mail over SMTP.
type EmailSink struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
}

// NewEmailSink builds an email sink. Auth is used only when username is set.
func NewEmailSink(host string, port int, username, password, from string, to []string) *EmailSink {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &EmailSink{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
		to:   to,
	}
}

func (e *EmailSink) Name() string { return "email" }

func (e *EmailSink) Send(_ context.Context, a *event.AlertEvent) error {
	subject := fmt.Sprintf("[%s] %s on %s", a.Severity, a.AlertType, a.ServiceName)
	if a.Status.Resolved() {
		subject = fmt.Sprintf("[RESOLVED] %s on %s", a.AlertType, a.ServiceName)
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "From: %s\r\n", e.from)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n\r\n", subject)
	fmt.Fprintf(&body, "%s\n\n", a.Message)
	fmt.Fprintf(&body, "Service:     %s\n", a.ServiceName)
	fmt.Fprintf(&body, "Severity:    %s\n", a.Severity)
	fmt.Fprintf(&body, "Status:      %s\n", a.Status)
	fmt.Fprintf(&body, "Current:     %.2f\n", a.CurrentValue)
	fmt.Fprintf(&body, "Threshold:   %.2f\n", a.ThresholdValue)
	fmt.Fprintf(&body, "Triggered:   %s\n", a.TriggeredAt.Format("2006-01-02T15:04:05"))
	if a.ResolvedAt != nil {
		fmt.Fprintf(&body, "Resolved:    %s\n", a.ResolvedAt.Format("2006-01-02T15:04:05"))
	}
	fmt.Fprintf(&body, "Alert ID:    %s\n", a.AlertID)

	if err := smtp.SendMail(e.addr, e.auth, e.from, e.to, body.Bytes()); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// --- Generic webhook ---

// WebhookSink POSTs the raw alert JSON to each configured URL.
type WebhookSink struct {
	urls   []string
	client *http.Client
}

// NewWebhookSink builds a webhook sink over client; a nil client uses the
// default.
func NewWebhookSink(urls []string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{urls: urls, client: client}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Send(ctx context.Context, a *event.AlertEvent) error {
	payload, err := event.EncodeAlert(a)
	if err != nil {
		return err
	}

	for _, url := range w.urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook post %s: %w", url, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook post %s: status %d", url, resp.StatusCode)
		}
	}
	return nil
}
