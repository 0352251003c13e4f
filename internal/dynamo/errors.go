package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for reachability operations.
var (
	// ErrDimensionMismatch indicates inconsistent vector or matrix shapes.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrNotPSD indicates a shape matrix that is not positive semidefinite.
	ErrNotPSD = errors.New("dynamo: shape matrix is not positive semidefinite")

	// ErrUnsupportedOrder indicates a Taylor remainder order other than 1 or 2.
	ErrUnsupportedOrder = errors.New("dynamo: unsupported remainder order")

	// ErrEmptyHorizon indicates a multi-step request without any feedback law.
	ErrEmptyHorizon = errors.New("dynamo: horizon must contain at least one step")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrInvalidState indicates NaN or Inf in a state or model output.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")
)

// StepError wraps a failure of one step of a multi-step propagation.
type StepError struct {
	Step    int
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Step, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
