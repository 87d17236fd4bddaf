package challenge

import (
	"errors"
	"fmt"
)

// FieldNotFoundError reports a required form field missing from a challenge
// page.  The page does not match the known template and is not retried.
type FieldNotFoundError struct {
	Name string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("challenge: field %q not found in challenge page", e.Name)
}

var (
	// ErrActionMalformed is returned when the form action carries no
	// "path?key=value" query to split.
	ErrActionMalformed = errors.New("challenge: form action is malformed")

	// ErrUnrecognizedScriptFormat is returned when no inline script holds
	// the setTimeout puzzle wrapper.
	ErrUnrecognizedScriptFormat = errors.New("challenge: unrecognized challenge script format")

	// ErrUnsupportedChallenge is returned for CAPTCHA challenges, which are
	// never attempted.
	ErrUnsupportedChallenge = errors.New("challenge: unsupported CAPTCHA challenge")
)

// ScriptEvaluationError wraps a failure to evaluate the puzzle, including a
// result that is not a finite number.
type ScriptEvaluationError struct {
	Err error
}

func (e *ScriptEvaluationError) Error() string {
	return fmt.Sprintf("challenge: evaluating challenge script: %v", e.Err)
}

func (e *ScriptEvaluationError) Unwrap() error { return e.Err }
