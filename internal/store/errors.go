package store

import (
	"errors"
	"fmt"

	"github.com/marcus/lists/internal/models"
)

var (
	// ErrValidation matches structural precondition failures.
	ErrValidation = models.ErrValidation
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("not found")
)

// ValidationError is raised synchronously and never retried.
type ValidationError = models.ValidationError

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Kind models.Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a NotFoundError from any id type.
func NotFound(kind models.Kind, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

// StorageError wraps a failed persistence operation, keeping the cause's message.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns nil for a nil err, passes through validation and not-found
// errors, and wraps everything else as a StorageError.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
