package planner

import (
	"context"
	"fmt"

	"github.com/mveselov-dev/songsmith/driver"
)

// targets maps logical element names to concrete locators. Plans and
// evaluator fixes speak logical names only; locators stay in one place so
// a studio redesign is a single-file change.
var targets = map[string]string{
	"custom-mode-toggle": "[data-testid='custom-mode-toggle']",
	"lyrics-input":       "[data-testid='lyrics-input']",
	"style-input":        "[data-testid='style-input']",
	"title-input":        "[data-testid='title-input']",
	"model-menu":         "[data-testid='model-select']",
	"persona-menu":       "[data-testid='persona-menu-button']",
	"persona-list":       "[data-testid='persona-list']",
	"workspace-menu":     "[data-testid='workspace-select']",
	"create-button":      "[data-testid='create-button']",
	"song-row":           "[data-testid='song-row']:first-child",
	"song-id":            "[data-testid='song-row']:first-child [data-testid='song-id']",
	"song-link":          "[data-testid='song-row']:first-child a[data-testid='song-link']",
}

// KnownTarget reports whether a logical target name resolves to a locator.
func KnownTarget(name string) bool {
	_, ok := targets[name]
	return ok
}

// Locator resolves a logical target name to its concrete locator.
func Locator(name string) (string, bool) {
	locator, ok := targets[name]
	return locator, ok
}

// Executor runs single actions against the studio through a UIDriver.
// Ordinary UI faults come back as ActionResult data; returned errors mean
// either a defective action (planning bug) or context cancellation.
type Executor struct {
	driver  driver.UIDriver
	baseURL string
}

func NewExecutor(d driver.UIDriver, baseURL string) *Executor {
	return &Executor{driver: d, baseURL: baseURL}
}

func (e *Executor) Execute(ctx context.Context, action Action) (ActionResult, error) {
	if !action.Kind.Valid() {
		return ActionResult{}, fmt.Errorf("executor: unknown action kind %q", action.Kind)
	}
	if action.Kind.RequiresValue() && action.Value == "" {
		return ActionResult{}, fmt.Errorf("executor: %s action missing value", action.Kind)
	}

	var locator string
	if action.Kind.RequiresTarget() {
		resolved, ok := targets[action.Target]
		if !ok {
			return ActionResult{}, fmt.Errorf("executor: unknown target %q", action.Target)
		}
		locator = resolved
	}

	switch action.Kind {
	case KindNavigate:
		return e.outcome(ctx, e.driver.Navigate(ctx, e.baseURL+action.Value))
	case KindClick:
		return e.outcome(ctx, e.driver.Click(ctx, locator))
	case KindInput:
		return e.outcome(ctx, e.driver.InputText(ctx, locator, action.Value))
	case KindSelect:
		return e.outcome(ctx, e.driver.SelectOption(ctx, locator, action.Value))
	case KindReadText:
		text, err := e.driver.GetElementText(ctx, locator)
		result, rerr := e.outcome(ctx, err)
		result.Text = text
		return result, rerr
	case KindCaptureEvidence:
		_, err := e.driver.CaptureEvidence(ctx)
		return e.outcome(ctx, err)
	}
	return ActionResult{}, fmt.Errorf("executor: unknown action kind %q", action.Kind)
}

// outcome folds a driver fault into result data. Cancellation is not a UI
// fault and propagates as an error.
func (e *Executor) outcome(ctx context.Context, err error) (ActionResult, error) {
	if err == nil {
		return ActionResult{Success: true}, nil
	}
	if ctx.Err() != nil {
		return ActionResult{}, ctx.Err()
	}
	return ActionResult{Success: false, Error: err.Error()}, nil
}

// ExtractFinalOutput reads the provider's identifiers for the generated
// song. It never fails the run: any read problem is reported inside the
// map as status=extraction_failed so a fully validated run is not retried
// just because the last scrape missed.
func (e *Executor) ExtractFinalOutput(ctx context.Context) map[string]string {
	contentID, err := e.driver.GetElementText(ctx, targets["song-id"])
	if err != nil {
		return extractionFailure(err)
	}
	contentURL, err := e.driver.GetElementText(ctx, targets["song-link"])
	if err != nil {
		return extractionFailure(err)
	}
	return map[string]string{
		"status":      "ok",
		"content_id":  contentID,
		"content_url": contentURL,
	}
}

func extractionFailure(err error) map[string]string {
	return map[string]string{
		"status": "extraction_failed",
		"error":  err.Error(),
	}
}
