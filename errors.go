package geosolver

import "errors"

// Sentinel errors for GeometricProblem/GeometricSolver authoring operations.
var (
	// ErrUnknownVariable indicates an operation referenced a variable the
	// problem does not know about.
	ErrUnknownVariable = errors.New("geosolver: unknown variable")
	// ErrDuplicateVariable indicates AddPoint was called for a variable
	// already present.
	ErrDuplicateVariable = errors.New("geosolver: variable already present")
	// ErrDuplicateConstraint indicates AddConstraint would violate the
	// at-most-one-per-pair/triple/variable uniqueness invariant.
	ErrDuplicateConstraint = errors.New("geosolver: duplicate constraint")
	// ErrUnsupportedConstraint indicates a constraint whose Kind is none of
	// the four recognized variants.
	ErrUnsupportedConstraint = errors.New("geosolver: unsupported constraint kind")
	// ErrUnsupportedDimension indicates a Solver was constructed for a
	// dimension other than 2 or 3.
	ErrUnsupportedDimension = errors.New("geosolver: unsupported dimension")
	// ErrProtocolViolation indicates GeometricSolver received a notification
	// from a source it never subscribed to. Unreachable through the public
	// API as wired by NewSolver; retained as a defensive, directly testable
	// guard for any future additional event source.
	ErrProtocolViolation = errors.New("geosolver: protocol violation")
	// ErrInvariantViolation indicates the reference configuration Solver
	// synthesized for a newly pushed primitive does not satisfy the
	// constraint it was built from. There is no recovery path: callers see
	// this as a panic carrying a github.com/pkg/errors stack trace, not a
	// returned error.
	ErrInvariantViolation = errors.New("geosolver: invariant violation")
)
