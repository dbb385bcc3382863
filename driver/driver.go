// Package driver defines the browser-automation boundary of the bot.
//
// The studio being driven is UI-only, so every interaction goes through a
// UIDriver. Implementations live behind this interface: a real one wraps an
// automation sidecar, SimDriver replays scripted sessions for tests and
// dry runs. Ordinary UI faults (element not found, click intercepted,
// navigation timeout) are returned as error values; callers decide whether
// a fault is retryable.
package driver

import "context"

// UIDriver performs primitive interactions against the studio UI.
type UIDriver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, target string) error
	InputText(ctx context.Context, target, text string) error
	SelectOption(ctx context.Context, target, option string) error
	GetElementText(ctx context.Context, target string) (string, error)
	// CaptureEvidence snapshots the current UI state, typically a screenshot.
	CaptureEvidence(ctx context.Context) ([]byte, error)
}
