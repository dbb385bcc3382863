package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/mveselov-dev/songsmith/driver"
)

func TestExecuteTranslatesDriverFault(t *testing.T) {
	sim := driver.NewSimDriver()
	locator, _ := Locator("create-button")
	sim.FailNext("click", locator, errors.New("click intercepted by overlay"))

	exec := NewExecutor(sim, "https://studio.example")
	result, err := exec.Execute(context.Background(), Action{Kind: KindClick, Target: "create-button"})
	if err != nil {
		t.Fatalf("driver fault must not become an error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failed result")
	}
	if result.Error != "click intercepted by overlay" {
		t.Fatalf("unexpected fault description %q", result.Error)
	}
}

func TestExecuteSuccessPath(t *testing.T) {
	sim := driver.NewSimDriver()
	exec := NewExecutor(sim, "https://studio.example")

	result, err := exec.Execute(context.Background(), Action{Kind: KindNavigate, Value: "/create"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	calls := sim.Calls()
	if len(calls) != 1 || calls[0].Target != "https://studio.example/create" {
		t.Fatalf("unexpected driver calls %+v", calls)
	}
}

func TestExecuteRejectsPlanDefects(t *testing.T) {
	exec := NewExecutor(driver.NewSimDriver(), "")

	if _, err := exec.Execute(context.Background(), Action{Kind: "hover", Target: "create-button"}); err == nil {
		t.Fatal("unknown kind must be an error")
	}
	if _, err := exec.Execute(context.Background(), Action{Kind: KindClick, Target: "mystery-button"}); err == nil {
		t.Fatal("unknown target must be an error")
	}
	if _, err := exec.Execute(context.Background(), Action{Kind: KindInput, Target: "lyrics-input"}); err == nil {
		t.Fatal("input without value must be an error")
	}
}

func TestExecutePropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(driver.NewSimDriver(), "")
	_, err := exec.Execute(ctx, Action{Kind: KindClick, Target: "create-button"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestExecuteReadText(t *testing.T) {
	sim := driver.NewSimDriver()
	locator, _ := Locator("song-id")
	sim.SetElementText(locator, "song-9f2")

	exec := NewExecutor(sim, "")
	result, err := exec.Execute(context.Background(), Action{Kind: KindReadText, Target: "song-id"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success || result.Text != "song-9f2" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestExtractFinalOutput(t *testing.T) {
	sim := driver.NewSimDriver()
	idLocator, _ := Locator("song-id")
	linkLocator, _ := Locator("song-link")
	sim.SetElementText(idLocator, "song-9f2")
	sim.SetElementText(linkLocator, "https://studio.example/song/9f2")

	exec := NewExecutor(sim, "https://studio.example")
	out := exec.ExtractFinalOutput(context.Background())
	if out["status"] != "ok" {
		t.Fatalf("unexpected status %q", out["status"])
	}
	if out["content_id"] != "song-9f2" || out["content_url"] != "https://studio.example/song/9f2" {
		t.Fatalf("unexpected output %v", out)
	}
}

func TestExtractFinalOutputNeverFails(t *testing.T) {
	sim := driver.NewSimDriver()
	// No element texts seeded: every read faults.
	exec := NewExecutor(sim, "")
	out := exec.ExtractFinalOutput(context.Background())
	if out["status"] != "extraction_failed" {
		t.Fatalf("expected extraction_failed, got %v", out)
	}
	if out["error"] == "" {
		t.Fatal("expected error detail in output")
	}
}
