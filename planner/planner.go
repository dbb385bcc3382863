// Package planner turns generation requests into ordered UI action plans
// and executes them against an automation driver.
package planner

import "context"

// ActionKind enumerates the primitive interactions a plan may contain.
// The set is closed: executors dispatch on it with a single switch and
// reject anything else as a planning defect.
type ActionKind string

const (
	KindNavigate        ActionKind = "navigate"
	KindClick           ActionKind = "click"
	KindInput           ActionKind = "input"
	KindSelect          ActionKind = "select"
	KindReadText        ActionKind = "read-text"
	KindCaptureEvidence ActionKind = "capture-evidence"
)

// Valid reports whether k is a member of the closed kind set.
func (k ActionKind) Valid() bool {
	switch k {
	case KindNavigate, KindClick, KindInput, KindSelect, KindReadText, KindCaptureEvidence:
		return true
	default:
		return false
	}
}

// RequiresValue reports whether actions of this kind must carry a value.
func (k ActionKind) RequiresValue() bool {
	switch k {
	case KindNavigate, KindInput, KindSelect:
		return true
	default:
		return false
	}
}

// RequiresTarget reports whether actions of this kind must name a target.
func (k ActionKind) RequiresTarget() bool {
	switch k {
	case KindClick, KindInput, KindSelect, KindReadText:
		return true
	default:
		return false
	}
}

// Action is one step of a plan. Target is a logical element name resolved
// to a concrete locator at execute time; Value carries the page path for
// navigate, the text for input, the option for select. Expect describes
// the UI state the step should leave behind, in evaluator-readable prose.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Target string     `json:"target,omitempty"`
	Value  string     `json:"value,omitempty"`
	Expect string     `json:"expect,omitempty"`
}

// ActionResult is the data-only outcome of executing one action. Driver
// faults land here as Success=false with a description, never as errors.
type ActionResult struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GenerationRequest describes one song to produce. RunID is the caller's
// idempotency key; every other field is optional and omitted fields drop
// their actions from the plan.
type GenerationRequest struct {
	RunID     string `json:"run_id" yaml:"run_id"`
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	Lyrics    string `json:"lyrics,omitempty" yaml:"lyrics,omitempty"`
	Style     string `json:"style,omitempty" yaml:"style,omitempty"`
	ModelID   string `json:"model_id,omitempty" yaml:"model_id,omitempty"`
	Persona   string `json:"persona,omitempty" yaml:"persona,omitempty"`
	Workspace string `json:"workspace,omitempty" yaml:"workspace,omitempty"`
}

// Planner produces the ordered action plan for a request.
type Planner interface {
	Plan(ctx context.Context, req GenerationRequest) ([]Action, error)
}
