// Package services contains business logic layers.
// Services are called by handlers and interact with the record store.
package services

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned for missing, invalid or role-mismatched
// credentials (web login or partner-lab API token).
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError marks malformed input to a workflow action.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError reports a store write that failed after earlier steps of
// the same workflow already persisted. CaseNumber names the record left in a
// partial state so an operator can inspect or repair it; partial success is
// never reported as success.
type PersistenceError struct {
	Op         string
	CaseNumber string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed for case %s (partial state persisted): %v", e.Op, e.CaseNumber, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IntegrityError reports a broken custody chain found by verification.
type IntegrityError struct {
	CaseNumber string
	BreakAt    int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("custody chain for case %s broken at event %d", e.CaseNumber, e.BreakAt)
}
