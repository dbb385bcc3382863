package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mveselov-dev/songsmith/internal/observability"
)

type webhookPayload struct {
	RunID      string            `json:"run_id"`
	Outcome    string            `json:"outcome"`
	Output     map[string]string `json:"output,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	NotifiedAt time.Time         `json:"notified_at"`
}

// WebhookNotifier posts terminal outcomes to an HTTP endpoint as JSON.
type WebhookNotifier struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

func NewWebhookNotifier(endpoint, token string, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = observability.NewLogger("notify.webhook")
	}
	return &WebhookNotifier{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
		now:      time.Now,
	}
}

func (n *WebhookNotifier) RunSucceeded(ctx context.Context, runID string, output map[string]string) error {
	return n.post(ctx, webhookPayload{
		RunID:      runID,
		Outcome:    "completed",
		Output:     output,
		NotifiedAt: n.now().UTC(),
	})
}

func (n *WebhookNotifier) RunFailed(ctx context.Context, runID string, reason string) error {
	return n.post(ctx, webhookPayload{
		RunID:      runID,
		Outcome:    "failed",
		Reason:     reason,
		NotifiedAt: n.now().UTC(),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload for run %s: %w", payload.RunID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request for run %s: %w", payload.RunID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: deliver outcome for run %s: %w", payload.RunID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook status %d for run %s", resp.StatusCode, payload.RunID)
	}

	observability.WithRun(n.logger, payload.RunID).Info("outcome delivered",
		"event", "outcome_delivered",
		"outcome", payload.Outcome,
	)
	return nil
}
