package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrEmptyMessage  = errors.New("feedback message is empty")
	ErrNotConfigured = errors.New("feedback webhook is not configured")
)

// WebhookError reports a non-2xx answer from the webhook.
type WebhookError struct {
	StatusCode int
	Status     string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook error: %s", e.Status)
}

type FeedbackConfig struct {
	WebhookURL string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Notifier forwards user feedback to a Discord-style webhook.
type Notifier struct {
	config FeedbackConfig
	client *http.Client
}

func NewWithConfig(config FeedbackConfig) *Notifier {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &Notifier{config: config, client: client}
}

// Configured reports whether a webhook URL is set.
func (n *Notifier) Configured() bool {
	return n.config.WebhookURL != ""
}

// Submit posts message as {"content": message}. Empty messages are rejected
// before anything is sent.
func (n *Notifier) Submit(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}
	if !n.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send feedback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &WebhookError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
