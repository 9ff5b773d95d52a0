package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the budget engine, the funnel projector and the
// transports. Callers match with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrInvalidParameter       = errors.New("invalid parameter")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")
)

// RollbackUsedError reports a rollback token whose event was already
// reverted.
type RollbackUsedError struct {
	EventID    int64
	RevertedBy int64
}

func (e *RollbackUsedError) Error() string {
	if e.RevertedBy == 0 {
		return fmt.Sprintf("event %d was already rolled back", e.EventID)
	}
	return fmt.Sprintf("event %d was already rolled back by event %d", e.EventID, e.RevertedBy)
}

func (e *RollbackUsedError) Unwrap() error { return ErrConcurrentModification }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError reports a status change that is not reachable from the
// current status.
type TransitionError struct {
	Entity EntityType
	ID     string
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s %s: cannot transition from %q to %q", e.Entity, e.ID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ConflictError reports that a conditional status update matched no rows
// because another writer changed the status first.
type ConflictError struct {
	Entity   EntityType
	ID       string
	Expected string
	Actual   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: expected status %q but found %q", e.Entity, e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentModification }

// ParameterError reports an input outside its domain.
type ParameterError struct {
	Name   string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

func (e *ParameterError) Unwrap() error { return ErrInvalidParameter }
