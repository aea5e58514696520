package api

import (
	"errors"
	"fmt"
)

// TransientBackendError wraps a failed call to the controller or to the
// bridge backend. The loop that observed it logs it, backs off and retries on
// a later tick; it never terminates the agent.
type TransientBackendError struct {
	// Op names the failed call (e.g. "list adapters").
	Op string

	Err error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientBackendError) Unwrap() error {
	return e.Err
}

// NewTransientBackendError wraps err, or returns nil when err is nil.
func NewTransientBackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientBackendError{Op: op, Err: err}
}

// IsTransient reports whether err wraps a TransientBackendError.
func IsTransient(err error) bool {
	var transient *TransientBackendError
	return errors.As(err, &transient)
}
