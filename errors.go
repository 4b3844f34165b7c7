package increquery

import "fmt"

// ContractViolationError marks a condition this package treats as a bug in
// the surrounding Runtime or QueryFunction rather than a recoverable
// runtime error — e.g. a Runtime reporting that a revision advanced while a
// query was executing, which the engine's contract says must never happen.
// fatal panics with one of these; recovering from it is possible but
// defeats the point, since the database's internal state is no longer
// trustworthy once its invariants have been violated.
type ContractViolationError struct {
	Message string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("increquery: contract violation: %s", e.Message)
}

// fatal panics with a *ContractViolationError built from format and args.
// Used at the handful of points that indicate a bug in the calling code
// rather than an ordinary error condition: a Durability() call observing an
// InProgress slot, a revision changing mid-computation, and the like.
func fatal(format string, args ...any) {
	panic(&ContractViolationError{Message: fmt.Sprintf(format, args...)})
}
