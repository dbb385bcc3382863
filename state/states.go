package state

import (
	"errors"
	"fmt"
)

type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// statusTransitions documents the run status machine. Terminal statuses
// admit only the identity transition; a terminal record is never rewritten
// into anything else.
var statusTransitions = map[RunStatus][]RunStatus{
	StatusPending:   {StatusPending, StatusCompleted, StatusFailed},
	StatusCompleted: {StatusCompleted},
	StatusFailed:    {StatusFailed},
}

// Terminal reports whether the status admits no further progress.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TransitionError signals an illegal status transition detected in the
// persistence layer.
type TransitionError struct {
	RunID string
	From  string
	To    string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("run %s: invalid transition from %s to %s", e.RunID, e.From, e.To)
}

// UnknownStatusError signals a status value that is not part of the
// documented status machine.
type UnknownStatusError struct {
	Status string
}

func (e UnknownStatusError) Error() string {
	return fmt.Sprintf("run: unknown status %q", e.Status)
}

func validateStatusTransition(runID string, from, to RunStatus) error {
	allowed, ok := statusTransitions[from]
	if !ok {
		return UnknownStatusError{Status: string(from)}
	}
	if !containsStatus(to) {
		return UnknownStatusError{Status: string(to)}
	}
	for _, candidate := range allowed {
		if candidate == to {
			return nil
		}
	}
	return TransitionError{RunID: runID, From: string(from), To: string(to)}
}

func containsStatus(s RunStatus) bool {
	_, ok := statusTransitions[s]
	return ok
}

func IsTransitionError(err error) bool {
	var te TransitionError
	return errors.As(err, &te)
}

func IsUnknownStatusError(err error) bool {
	var ue UnknownStatusError
	return errors.As(err, &ue)
}
