// Package alert posts operational alerts to a Slack-style incoming
// webhook. Alerts are fire-and-forget: they never block or fail the
// pipeline that raised them.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type Notifier struct {
	webhookURL string
	env        string
	httpClient *http.Client
	logger     *slog.Logger
}

// New returns a Notifier posting to webhookURL. An empty URL yields a
// no-op notifier, which keeps call sites unconditional.
func New(webhookURL, env string, logger *slog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		env:        env,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// Notify sends message asynchronously. Failures are logged and dropped.
func (n *Notifier) Notify(ctx context.Context, message string) {
	if n.webhookURL == "" {
		return
	}

	body, err := json.Marshal(map[string]string{
		"text": "[" + n.env + "] " + message,
	})
	if err != nil {
		n.logger.Error("failed to marshal alert", "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if err != nil {
			n.logger.Error("failed to build alert request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			n.logger.Error("failed to post alert", "error", err)
			return
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			n.logger.Error("alert webhook rejected message", "status", resp.StatusCode)
		}
	}()
}
