package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mveselov-dev/songsmith/driver"
	"github.com/mveselov-dev/songsmith/evidence"
	"github.com/mveselov-dev/songsmith/internal/observability"
	"github.com/mveselov-dev/songsmith/planner"
)

// StepValidator captures evidence for a step and has it judged by the
// evaluator. The evaluator is called at most once per step; its response
// must satisfy the verdict contract or the call fails with ProtocolError.
type StepValidator struct {
	driver    driver.UIDriver
	evaluator Evaluator
	store     evidence.Store
	schema    *jsonschema.Schema
	logger    *slog.Logger
	now       func() time.Time
}

func NewStepValidator(d driver.UIDriver, e Evaluator, store evidence.Store, logger *slog.Logger) (*StepValidator, error) {
	if d == nil {
		return nil, errors.New("validator: driver is required")
	}
	if e == nil {
		return nil, errors.New("validator: evaluator is required")
	}
	if store == nil {
		store = evidence.NewMemStore()
	}
	if logger == nil {
		logger = observability.NewLogger("validator")
	}
	schema, err := compileVerdictSchema()
	if err != nil {
		return nil, err
	}
	return &StepValidator{
		driver:    d,
		evaluator: e,
		store:     store,
		schema:    schema,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// CaptureEvidence snapshots the UI and persists the snapshot. A false
// return means no usable evidence exists for this step; the caller must
// not invoke the evaluator.
func (v *StepValidator) CaptureEvidence(ctx context.Context, runID string, step int) (evidence.Evidence, bool) {
	logger := observability.WithStep(observability.WithRun(v.logger, runID), step)

	data, err := v.driver.CaptureEvidence(ctx)
	if err != nil {
		logger.Warn("evidence capture failed", "event", "evidence_capture_failed", "error", err.Error())
		return evidence.Evidence{}, false
	}

	id := uuid.NewString()
	name := fmt.Sprintf("step-%03d-%s.png", step, id)
	uri, err := v.store.Put(ctx, runID, name, data)
	if err != nil {
		logger.Warn("evidence persist failed", "event", "evidence_persist_failed", "error", err.Error())
		return evidence.Evidence{}, false
	}

	return evidence.Evidence{
		ID:         id,
		RunID:      runID,
		Step:       step,
		URI:        uri,
		CapturedAt: v.now().UTC(),
		Data:       data,
	}, true
}

// Validate submits evidence to the evaluator and decodes the verdict.
// Responses that are not JSON, miss required fields, or mistype them are
// ProtocolErrors; transport failures come back unwrapped so the two stay
// distinguishable.
func (v *StepValidator) Validate(ctx context.Context, ev evidence.Evidence, expectedState string) (Verdict, error) {
	raw, err := v.evaluator.Judge(ctx, ev, expectedState)
	if err != nil {
		return Verdict{}, fmt.Errorf("validator: judge step %d: %w", ev.Step, err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Verdict{}, &ProtocolError{Reason: "response is not valid json", Cause: err}
	}
	if err := v.schema.Validate(decoded); err != nil {
		return Verdict{}, &ProtocolError{Reason: "response violates the verdict contract", Cause: err}
	}

	var verdict Verdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return Verdict{}, &ProtocolError{Reason: "response does not decode into a verdict", Cause: err}
	}
	return verdict, nil
}

// Assess is the per-step validation policy. A failed action is rejected
// synthetically without consulting the evaluator, since the evaluator
// cannot approve a step that never happened. Missing evidence likewise
// short-circuits to a rejection.
func (v *StepValidator) Assess(ctx context.Context, runID string, step int, result planner.ActionResult, expectedState string) (Verdict, error) {
	if !result.Success {
		feedback := "action failed"
		if result.Error != "" {
			feedback = "action failed: " + result.Error
		}
		return Verdict{Approved: false, Feedback: feedback}, nil
	}

	ev, ok := v.CaptureEvidence(ctx, runID, step)
	if !ok {
		if err := ctx.Err(); err != nil {
			return Verdict{}, err
		}
		return Verdict{Approved: false, Feedback: "evidence capture failed"}, nil
	}

	return v.Validate(ctx, ev, expectedState)
}
