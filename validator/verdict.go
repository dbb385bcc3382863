// Package validator judges executed steps through an external evaluator
// and enforces the evaluator's response contract at the boundary.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mveselov-dev/songsmith/planner"
)

// Verdict is the evaluator's judgment of one step.
type Verdict struct {
	Approved     bool        `json:"approved"`
	Feedback     string      `json:"feedback"`
	SuggestedFix []FixAction `json:"suggestedFix,omitempty"`
}

// FixAction is one corrective step suggested by the evaluator. The shape is
// deliberately loose; entries are machine-checked before they may enter a
// plan.
type FixAction struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	Value  string `json:"value,omitempty"`
	Expect string `json:"expect,omitempty"`
}

// ProtocolError marks an evaluator response that violates the verdict
// contract. It is a fault of the evaluator integration, not a negative
// judgment of the step.
type ProtocolError struct {
	Reason string
	Cause  error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validator: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("validator: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// IsProtocolError reports whether err carries a ProtocolError.
func IsProtocolError(err error) bool {
	var protocolErr *ProtocolError
	return errors.As(err, &protocolErr)
}

// verdictSchema is the contract every evaluator response must satisfy:
// approved and feedback are mandatory and typed, suggestedFix entries must
// at least name an action.
const verdictSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["approved", "feedback"],
	"properties": {
		"approved": {"type": "boolean"},
		"feedback": {"type": "string"},
		"suggestedFix": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["action"],
				"properties": {
					"action": {"type": "string"},
					"target": {"type": "string"},
					"value": {"type": "string"},
					"expect": {"type": "string"}
				}
			}
		}
	}
}`

const verdictSchemaURL = "https://songsmith.schemas.local/evaluator-verdict.schema.json"

func compileVerdictSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(verdictSchemaURL, strings.NewReader(verdictSchema)); err != nil {
		return nil, fmt.Errorf("validator: load verdict schema: %w", err)
	}
	compiled, err := c.Compile(verdictSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("validator: compile verdict schema: %w", err)
	}
	return compiled, nil
}

const defaultFixExpect = "the corrective step leaves the create page ready to continue"

// ExtractRetryActions filters a verdict's suggested fix down to entries the
// executor is guaranteed to understand: known kind, resolvable target, and
// a value where the kind demands one. It reports false when nothing usable
// remains.
func ExtractRetryActions(verdict Verdict) ([]planner.Action, bool) {
	actions := make([]planner.Action, 0, len(verdict.SuggestedFix))
	for _, fix := range verdict.SuggestedFix {
		kind := planner.ActionKind(fix.Action)
		if !kind.Valid() {
			continue
		}
		if kind.RequiresTarget() && !planner.KnownTarget(fix.Target) {
			continue
		}
		if kind.RequiresValue() && fix.Value == "" {
			continue
		}
		expect := fix.Expect
		if expect == "" {
			expect = defaultFixExpect
		}
		actions = append(actions, planner.Action{
			Kind:   kind,
			Target: fix.Target,
			Value:  fix.Value,
			Expect: expect,
		})
	}
	if len(actions) == 0 {
		return nil, false
	}
	return actions, true
}
