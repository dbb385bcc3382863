package state

import (
	"fmt"
	"time"

	"github.com/mveselov-dev/songsmith/planner"
)

// RunRecord is the durable state of one generation run. It is saved as a
// whole on every mutation; a process restart resumes from exactly what the
// last save left behind.
type RunRecord struct {
	RunID string `json:"run_id"`
	// PlannedActions is the plan as of the last save, including any
	// evaluator-suggested splices.
	PlannedActions []planner.Action `json:"planned_actions"`
	// ActionResults aligns by index with PlannedActions and may trail it;
	// entries are nil for steps that have not executed since the last
	// splice or reset.
	ActionResults     []*planner.ActionResult `json:"action_results"`
	LastCompletedStep int                     `json:"last_completed_step"`
	RetryCount        int                     `json:"retry_count"`
	Status            RunStatus               `json:"status"`
	FinalOutput       map[string]string       `json:"final_output,omitempty"`
	Error             string                  `json:"error,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// NewRunRecord returns the initial pending record for a freshly planned run.
func NewRunRecord(runID string, plan []planner.Action, now time.Time) RunRecord {
	return RunRecord{
		RunID:             runID,
		PlannedActions:    plan,
		ActionResults:     make([]*planner.ActionResult, 0, len(plan)),
		LastCompletedStep: -1,
		Status:            StatusPending,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}
}

// SetResult records the outcome of one step, growing the result slice as
// needed so indexes stay aligned with the plan.
func (r *RunRecord) SetResult(step int, result planner.ActionResult) {
	for len(r.ActionResults) <= step {
		r.ActionResults = append(r.ActionResults, nil)
	}
	stored := result
	r.ActionResults[step] = &stored
}

// Splice replaces the plan tail from step onward with fix actions and
// drops the results for the replaced steps.
func (r *RunRecord) Splice(step int, fix []planner.Action) {
	r.PlannedActions = append(append([]planner.Action{}, r.PlannedActions[:step]...), fix...)
	if len(r.ActionResults) > step {
		r.ActionResults = r.ActionResults[:step]
	}
}

// Validate checks the structural invariants every persisted record must
// satisfy.
func (r RunRecord) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("record missing run id")
	}
	if !containsStatus(r.Status) {
		return UnknownStatusError{Status: string(r.Status)}
	}
	if r.LastCompletedStep < -1 || r.LastCompletedStep >= len(r.PlannedActions) {
		return fmt.Errorf("run %s: last completed step %d out of range for %d planned actions",
			r.RunID, r.LastCompletedStep, len(r.PlannedActions))
	}
	if r.RetryCount < 0 {
		return fmt.Errorf("run %s: negative retry count %d", r.RunID, r.RetryCount)
	}
	if len(r.ActionResults) > len(r.PlannedActions) {
		return fmt.Errorf("run %s: %d results exceed %d planned actions",
			r.RunID, len(r.ActionResults), len(r.PlannedActions))
	}
	if r.Status != StatusCompleted && r.FinalOutput != nil {
		return fmt.Errorf("run %s: final output set on %s record", r.RunID, r.Status)
	}
	if r.Status != StatusFailed && r.Error != "" {
		return fmt.Errorf("run %s: error set on %s record", r.RunID, r.Status)
	}
	return nil
}
