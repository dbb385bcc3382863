package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/mveselov-dev/songsmith/internal/observability"
)

// SongMetadata is the caller-facing outcome of a completed run: the request
// fields echoed back plus the provider identifiers scraped from the session.
type SongMetadata struct {
	RunID              string    `json:"run_id"`
	Title              string    `json:"title,omitempty"`
	Style              string    `json:"style,omitempty"`
	ModelID            string    `json:"model_id,omitempty"`
	Persona            string    `json:"persona,omitempty"`
	Workspace          string    `json:"workspace,omitempty"`
	ProviderContentID  string    `json:"provider_content_id,omitempty"`
	ProviderContentURL string    `json:"provider_content_url,omitempty"`
	CompletedAt        time.Time `json:"completed_at"`
}

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 30 * time.Second
)

// Config tunes the retry policy and the ambient wiring of a Service.
// Zero values select the defaults.
type Config struct {
	// MaxRetries is how many failed full or partial sequence attempts a run
	// may consume before it is persisted as failed.
	MaxRetries int
	// RetryDelay is the fixed pause between attempts; it does not grow
	// across retries.
	RetryDelay time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics

	// Sleep and Now are injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.Logger == nil {
		c.Logger = observability.NewLogger("orchestrator")
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
