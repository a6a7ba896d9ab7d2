// Package mattermost posts escalation alerts to Mattermost Incoming Webhooks.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bissquit/riskengine/internal/notifications"
	"github.com/bissquit/riskengine/internal/pkg/ctxlog"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "RiskEngine"

	// maxErrorBody caps how much of a failed response is kept in errors.
	maxErrorBody = 512
)

// Attachment colors by severity.
var severityColors = map[string]string{
	"SEV1": "#d0021b",
	"SEV2": "#f5a623",
	"SEV3": "#f8e71c",
}

// Config holds Mattermost sender configuration. The webhook URL travels
// with each notification.
type Config struct {
	Username string        // display name, default "RiskEngine"
	IconURL  string        // optional
	Channel  string        // optional override of the webhook's channel
	Timeout  time.Duration // request timeout
}

// Sender implements notifications.Sender via Incoming Webhooks.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new Mattermost sender.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Type returns the channel type.
func (s *Sender) Type() notifications.ChannelType {
	return notifications.ChannelTypeMattermost
}

// Send posts a notification. notification.To is the webhook URL.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	webhookURL := notification.To
	if webhookURL == "" {
		return &PermanentError{Message: "webhook URL is empty"}
	}

	body, err := json.Marshal(s.buildPayload(notification))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := handleResponse(resp); err != nil {
		return err
	}

	ctxlog.FromContext(ctx).Debug("mattermost message sent", "webhook", maskWebhookURL(webhookURL))
	return nil
}

type webhookPayload struct {
	Text        string       `json:"text,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Channel     string       `json:"channel,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Fallback string `json:"fallback"`
	Color    string `json:"color"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
}

// buildPayload sends severity-tagged notifications as a colored attachment
// and everything else as plain markdown.
func (s *Sender) buildPayload(notification notifications.Notification) webhookPayload {
	payload := webhookPayload{
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
		Channel:  s.config.Channel,
	}

	if color, ok := severityColors[notification.Severity]; ok {
		payload.Attachments = []attachment{{
			Fallback: notification.Subject,
			Color:    color,
			Title:    notification.Subject,
			Text:     notification.Body,
		}}
		return payload
	}

	if notification.Subject != "" {
		payload.Text = fmt.Sprintf("### %s\n\n%s", notification.Subject, notification.Body)
	} else {
		payload.Text = notification.Body
	}
	return payload
}

func handleResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	body := string(raw)

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{Code: resp.StatusCode, Message: "bad request: " + body}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &PermanentError{Code: resp.StatusCode, Message: "invalid or expired webhook"}
	case resp.StatusCode == http.StatusNotFound:
		return &PermanentError{Code: resp.StatusCode, Message: "webhook not found"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{Code: resp.StatusCode, Message: "rate limited"}
	case resp.StatusCode >= 500:
		return &RetryableError{Code: resp.StatusCode, Message: "server error: " + body}
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

// maskWebhookURL hides the webhook key for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// PermanentError is a delivery failure that will not go away on retry.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("mattermost error %d: %s", e.Code, e.Message)
	}
	return "mattermost error: " + e.Message
}

// IsRetryable returns false.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError is a temporary delivery failure.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("mattermost error %d: %s", e.Code, e.Message)
	}
	return "mattermost error: " + e.Message
}

// IsRetryable returns true.
func (e *RetryableError) IsRetryable() bool { return true }
