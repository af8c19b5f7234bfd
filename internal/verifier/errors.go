package verifier

import (
	"errors"
	"fmt"

	"github.com/Checker-Finance/login-verifier/pkg/model"
)

// ErrUnreachable matches every ConnectionError via errors.Is.
var ErrUnreachable = errors.New("login service unreachable")

// AssertionError means the service answered but not as the scenario expects.
type AssertionError struct {
	Scenario string
	Field    string // "status" or "message"
	Expected any
	Actual   any
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s %v, got %v", e.Scenario, e.Field, e.Expected, e.Actual)
}

// ConnectionError means no HTTP response was received.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUnreachable, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrUnreachable }

// failureKind maps an error returned by Verify onto a model failure kind.
func failureKind(err error) string {
	var ae *AssertionError
	if errors.As(err, &ae) {
		return model.FailureAssertion
	}
	return model.FailureConnection
}
