package planner

import (
	"context"
	"reflect"
	"testing"
)

func TestPlanFullRequestOrdering(t *testing.T) {
	req := GenerationRequest{
		RunID:     "run-1",
		Title:     "Night Drive",
		Lyrics:    "city lights blur past",
		Style:     "synthwave, 120 bpm",
		ModelID:   "chirp-v4",
		Persona:   "Neon Vox",
		Workspace: "demos",
	}

	plan, err := StudioPlanner{}.Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	kinds := make([]ActionKind, 0, len(plan))
	targets := make([]string, 0, len(plan))
	for _, action := range plan {
		kinds = append(kinds, action.Kind)
		targets = append(targets, action.Target)
	}

	wantKinds := []ActionKind{
		KindNavigate, KindSelect, KindClick, KindInput, KindInput,
		KindInput, KindClick, KindSelect, KindSelect, KindClick,
	}
	if !reflect.DeepEqual(kinds, wantKinds) {
		t.Fatalf("unexpected kind sequence: %v", kinds)
	}

	wantTargets := []string{
		"", "model-menu", "custom-mode-toggle", "lyrics-input", "style-input",
		"title-input", "persona-menu", "persona-list", "workspace-menu", "create-button",
	}
	if !reflect.DeepEqual(targets, wantTargets) {
		t.Fatalf("unexpected target sequence: %v", targets)
	}

	if plan[0].Value != "/create" {
		t.Fatalf("expected default create path, got %q", plan[0].Value)
	}
	if last := plan[len(plan)-1]; last.Target != "create-button" {
		t.Fatalf("plan must end with the submit click, got %+v", last)
	}
}

func TestPlanOmitsAbsentFields(t *testing.T) {
	plan, err := StudioPlanner{}.Plan(context.Background(), GenerationRequest{RunID: "run-2"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if len(plan) != 2 {
		t.Fatalf("minimal plan should be navigate+submit, got %d actions: %v", len(plan), plan)
	}
	if plan[0].Kind != KindNavigate || plan[1].Target != "create-button" {
		t.Fatalf("unexpected minimal plan: %+v", plan)
	}
	for _, action := range plan {
		if action.Kind == KindInput {
			t.Fatalf("empty fields must not produce input actions: %+v", action)
		}
	}
}

func TestPlanCustomModeOnlyWithLyricsOrStyle(t *testing.T) {
	withStyle, err := StudioPlanner{}.Plan(context.Background(), GenerationRequest{RunID: "run-3", Style: "lo-fi"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	found := false
	for _, action := range withStyle {
		if action.Target == "custom-mode-toggle" {
			found = true
		}
	}
	if !found {
		t.Fatal("style-only request must enable custom mode")
	}

	titleOnly, err := StudioPlanner{}.Plan(context.Background(), GenerationRequest{RunID: "run-4", Title: "Untitled"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, action := range titleOnly {
		if action.Target == "custom-mode-toggle" {
			t.Fatal("title-only request must not enable custom mode")
		}
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	req := GenerationRequest{RunID: "run-5", Lyrics: "la la la", ModelID: "chirp-v4"}
	first, err := StudioPlanner{}.Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	second, err := StudioPlanner{}.Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("plans differ for identical requests:\n%v\n%v", first, second)
	}
}

func TestPlanRejectsMissingRunID(t *testing.T) {
	if _, err := (StudioPlanner{}).Plan(context.Background(), GenerationRequest{}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestPlanTargetsAreResolvable(t *testing.T) {
	req := GenerationRequest{
		RunID:     "run-6",
		Title:     "t",
		Lyrics:    "l",
		Style:     "s",
		ModelID:   "m",
		Persona:   "p",
		Workspace: "w",
	}
	plan, err := StudioPlanner{}.Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, action := range plan {
		if action.Kind.RequiresTarget() && !KnownTarget(action.Target) {
			t.Fatalf("planned target %q has no locator", action.Target)
		}
	}
}
