package service

import "fmt"

// ValidationError rejects a malformed user mutation before anything is
// written or queued. It is surfaced to the caller, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
