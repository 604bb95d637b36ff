package types

import "errors"

// Sentinel errors corresponding to the error-kind taxonomy of spec.md §7.
// Kinds are modeled as Go error values rather than type names so callers
// use the idiomatic errors.Is/errors.As rather than a switch on a string
// tag.
var (
	// ErrValidationRejected: Evaluator returned valid=false or the covenant
	// seal failed. Not retryable.
	ErrValidationRejected = errors.New("oracle: validation rejected")

	// ErrDuplicate: insertion would violate the (name, language) uniqueness
	// invariant. Store.Insert never returns this to a well-behaved caller —
	// it resolves the duplicate via merge — but Insert with strictInsert=true surfaces it.
	ErrDuplicate = errors.New("oracle: duplicate name")

	// ErrNotFound: a referenced identifier does not exist.
	ErrNotFound = errors.New("oracle: not found")

	// ErrConflict: a compare-and-set lost a race. Caller may retry.
	ErrConflict = errors.New("oracle: conflict")

	// ErrTransient: network, lock-busy, or timeout. Retryable with backoff.
	ErrTransient = errors.New("oracle: transient failure")

	// ErrFatal: integrity check failed or storage corruption. Non-retryable.
	ErrFatal = errors.New("oracle: fatal error")

	// ErrCircuitOpen: the operation's circuit breaker is open.
	ErrCircuitOpen = errors.New("oracle: circuit open")

	// ErrBusy: a second lifecycle cycle was requested while one is running
	// and the configuration rejects rather than queues it.
	ErrBusy = errors.New("oracle: busy")
)
