package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
)

// NotFoundError reports an id that does not resolve to an entity of Kind.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound is shorthand for &NotFoundError{Kind: kind, ID: id}.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidStateError reports an operation attempted from a status that does
// not permit it.
type InvalidStateError struct {
	TaskID string
	Status TaskStatus
	Want   TaskStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	if e.Want != "" {
		return fmt.Sprintf("cannot %s task %s: status is %s, must be %s", e.Op, e.TaskID, e.Status, e.Want)
	}
	return fmt.Sprintf("cannot %s task %s from status %s", e.Op, e.TaskID, e.Status)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
