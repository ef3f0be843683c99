package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/sloguard/internal/domain"
)

// Форматы тела webhook
const (
	FormatJSON  = "json"
	FormatSlack = "slack"
)

// WebhookNotifier отправляет оповещение POST-запросом
type WebhookNotifier struct {
	url    string
	format string
	client *http.Client
}

func NewWebhookNotifier(url, format string, timeout time.Duration) *WebhookNotifier {
	if format == "" {
		format = FormatJSON
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		format: format,
		client: &http.Client{Timeout: timeout},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, n domain.Notification) error {
	body, err := w.encode(n)
	if err != nil {
		return fmt.Errorf("webhook: marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Notification-ID", n.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("webhook returned status %d", resp.StatusCode),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookNotifier) encode(n domain.Notification) ([]byte, error) {
	if w.format != FormatSlack {
		return json.Marshal(n)
	}

	msg := slackMessage{
		Text: n.Message(),
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: "SLO " + string(n.Event)}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: n.Message()}},
		},
	}
	return json.Marshal(msg)
}

// parseRetryAfter поддерживает только форму в секундах; иначе — секунда по умолчанию
func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
