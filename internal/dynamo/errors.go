package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for trajectory, structure and control operations.
var (
	// ErrInsufficientHistory indicates a buffer holds fewer samples than requested.
	ErrInsufficientHistory = errors.New("dynamo: insufficient history")

	// ErrInsufficientData indicates an offline trajectory is too short for the
	// requested Tini/horizon.
	ErrInsufficientData = errors.New("dynamo: insufficient data for predictive structure")

	// ErrDimensionMismatch indicates mismatched matrix, window or callback shapes.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrInfeasible indicates the solver proved the control problem has no feasible point.
	ErrInfeasible = errors.New("dynamo: problem infeasible")

	// ErrSolver indicates a numerical failure distinct from proven infeasibility.
	ErrSolver = errors.New("dynamo: solver failure")

	// ErrMalformedConstraint indicates an objective or constraint that is not
	// convex/affine in the exposed decision variables.
	ErrMalformedConstraint = errors.New("dynamo: malformed constraint")

	// ErrNotExcited indicates the training data failed the persistency of
	// excitation rank check.
	ErrNotExcited = errors.New("dynamo: data not persistently exciting")

	// ErrInvalidNoise indicates a negative noise standard deviation.
	ErrInvalidNoise = errors.New("dynamo: noise standard deviation must be non-negative")

	// ErrInvalidTransition indicates an operation called in the wrong lifecycle state.
	ErrInvalidTransition = errors.New("dynamo: invalid state transition")
)

// StepError wraps an error with closed-loop context.
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
