package orchestrator

import (
	"errors"
	"fmt"
)

// CannotResumeError reports a persisted pending run whose plan is unusable.
// Resumed runs are never re-planned: a fresh plan could disagree with the
// recorded progress and re-execute steps the provider already billed.
type CannotResumeError struct {
	RunID  string
	Reason string
}

func (e *CannotResumeError) Error() string {
	return fmt.Sprintf("orchestrator: cannot resume run %s: %s", e.RunID, e.Reason)
}

// IsCannotResumeError reports whether err carries a CannotResumeError.
func IsCannotResumeError(err error) bool {
	var target *CannotResumeError
	return errors.As(err, &target)
}

// ExhaustedError reports a run that spent its whole retry budget. Feedback
// carries the evaluator's last word on what was wrong; Cause, when present,
// is the validator fault behind the final attempt.
type ExhaustedError struct {
	RunID    string
	Retries  int
	Feedback string
	Cause    error
}

func (e *ExhaustedError) Error() string {
	if e.Feedback != "" {
		return fmt.Sprintf("orchestrator: run %s exhausted after %d attempts: %s", e.RunID, e.Retries, e.Feedback)
	}
	return fmt.Sprintf("orchestrator: run %s exhausted after %d attempts", e.RunID, e.Retries)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// IsExhaustedError reports whether err carries an ExhaustedError.
func IsExhaustedError(err error) bool {
	var target *ExhaustedError
	return errors.As(err, &target)
}
