package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// WebhookDispatcher POSTs each payload as JSON to a configured endpoint.
// Delivery runs in its own goroutine and any failure is logged and
// dropped; a matched trade is final whether or not the endpoint is up.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookDispatcher creates a dispatcher for the given endpoint URL.
func NewWebhookDispatcher(url string, timeout time.Duration, logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Dispatch delivers the payload asynchronously.
func (d *WebhookDispatcher) Dispatch(p Payload) {
	go d.deliver(p)
}

func (d *WebhookDispatcher) deliver(p Payload) {
	body, err := json.Marshal(p)
	if err != nil {
		d.logger.Error("notification encode failed", slog.String("error", err.Error()))
		return
	}
	resp, err := d.client.Post(d.url, "application/json", bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("notification delivery failed",
			slog.String("account_id", p.AccountID),
			slog.String("error", err.Error()),
		)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.logger.Warn("notification delivery rejected",
			slog.String("account_id", p.AccountID),
			slog.Int("status", resp.StatusCode),
		)
	}
}
