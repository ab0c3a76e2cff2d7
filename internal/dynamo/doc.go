// Package dynamo provides the core data primitives shared by the data-driven
// predictive control stack.
//
// The package defines the types every other layer exchanges:
//
//   - [Data]: an aligned input/output trajectory (T×M inputs, T×P outputs)
//   - [StepError]: a failure raised inside one closed-loop iteration
//   - the error taxonomy ([ErrInsufficientHistory], [ErrInsufficientData],
//     [ErrDimensionMismatch], [ErrInfeasible], [ErrSolver], ...)
//
// # Example
//
//	data, err := dynamo.NewData(u, y)
//	if err != nil {
//	    return err
//	}
//	window, err := data.Tail(tini)
//
// # Thread Safety
//
// Data values are plain matrices. Methods returning Data always copy, so a
// value handed to another component is never mutated behind its back.
package dynamo
