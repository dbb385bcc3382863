package observability

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger with a component field attached.
func NewLogger(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}

func WithRun(logger *slog.Logger, runID string) *slog.Logger {
	if logger == nil || runID == "" {
		return logger
	}
	return logger.With("run_id", runID)
}

func WithStep(logger *slog.Logger, step int) *slog.Logger {
	if logger == nil || step < 0 {
		return logger
	}
	return logger.With("step", step)
}

func WithAttempt(logger *slog.Logger, attempt int) *slog.Logger {
	if logger == nil || attempt < 0 {
		return logger
	}
	return logger.With("attempt", attempt)
}
