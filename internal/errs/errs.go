// Package errs defines the typed error taxonomy shared by every core
// component: load-time failures, per-call argument/state errors, and the
// distinct "not ready yet" and "not authorized" statuses.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors callers can match with errors.Is.
var (
	// ErrInvalidArgument is an out-of-range id, a non-positive top-k, or
	// mismatched vector lengths passed to an arithmetic helper.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is a history index or display page beyond available data.
	ErrOutOfRange = errors.New("out of range")

	// ErrEmptyQuery is a rescore whose components are all empty.
	ErrEmptyQuery = errors.New("empty query")

	// ErrSomNotReady is a SOM display requested before training finished.
	// It is a status, not a failure: callers poll and retry.
	ErrSomNotReady = errors.New("som not ready")

	// ErrNotAuthorized is returned by submit without a prior login.
	// Logout does not return it: it reports a bool, and returns true when
	// no session is active.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrStoreClosed is not returned by any package in this module; a
	// closed event Store silently ignores records.
	ErrStoreClosed = errors.New("store is closed")
)

// LoadError wraps a fatal failure encountered while constructing the
// immutable, process-wide data (catalog, feature matrices, keyword table).
// It always propagates out of the loader; there is no degraded mode here.
type LoadError struct {
	Op  string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load: %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// WrapLoad wraps err as a LoadError, or returns nil if err is nil.
func WrapLoad(op string, err error) error {
	if err == nil {
		return nil
	}
	return &LoadError{Op: op, Err: err}
}

// CallError wraps one of the sentinel per-call errors with operation
// context, mirroring the teacher's StoreError{Op, Err} + wrapError idiom.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return errors.Is(e.Err, target) }

// Wrap attaches operation context to one of the sentinel errors above (or
// any other error). Returns nil if err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CallError{Op: op, Err: err}
}

// InvalidArgument is a convenience constructor for the common case.
func InvalidArgument(op, reason string) error {
	return Wrap(op, fmt.Errorf("%w: %s", ErrInvalidArgument, reason))
}
