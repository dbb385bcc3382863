// Package notify publishes run outcomes to external sinks.
package notify

import (
	"context"
	"log/slog"

	"github.com/mveselov-dev/songsmith/internal/observability"
)

// Notifier receives terminal run outcomes. Implementations must tolerate
// being called once per run at most; delivery failures are the caller's to
// log, not to retry.
type Notifier interface {
	RunSucceeded(ctx context.Context, runID string, output map[string]string) error
	RunFailed(ctx context.Context, runID string, reason string) error
}

// Noop ignores outcomes.
type Noop struct{}

func (Noop) RunSucceeded(ctx context.Context, runID string, output map[string]string) error {
	return nil
}

func (Noop) RunFailed(ctx context.Context, runID string, reason string) error {
	return nil
}

// LogNotifier writes outcomes to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = observability.NewLogger("notify")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) RunSucceeded(ctx context.Context, runID string, output map[string]string) error {
	observability.WithRun(n.logger, runID).Info("run succeeded",
		"event", "run_succeeded",
		"content_id", output["content_id"],
		"content_url", output["content_url"],
	)
	return nil
}

func (n *LogNotifier) RunFailed(ctx context.Context, runID string, reason string) error {
	observability.WithRun(n.logger, runID).Warn("run failed",
		"event", "run_failed",
		"reason", reason,
	)
	return nil
}
