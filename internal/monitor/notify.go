package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Notification is one alert delivery. Tag equals the alert id so downstream
// sinks can deduplicate repeated notifications for the same alert.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// Notifier delivers alert notifications to a host-specific sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log. Used when no
// external sink is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the notification.
func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("crisis alert",
		slog.String("tag", n.Tag),
		slog.String("title", n.Title),
		slog.String("body", n.Body))
	return nil
}

// WebhookNotifier posts notifications as JSON to a configured URL.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier constructs a notifier targeting the given webhook.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// Notify delivers the notification over HTTP.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
