// Package services defines the business logic of the comment store.
// This file centralizes the service-level error taxonomy so that every
// operation reports failures the same way and callers can branch on them.
//
// Each concrete error type matches one sentinel through errors.Is:
//
//	ValidationError         -> ErrValidation
//	NotFoundError           -> ErrNotFound
//	ConflictError           -> ErrConflict
//	StorageUnavailableError -> ErrStorageUnavailable
//
// Translation into HTTP status codes happens in the handler layer.
package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tbourn/go-comments-backend/internal/repo"
)

var (
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches any *NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrConflict matches any *ConflictError.
	ErrConflict = errors.New("conflict")

	// ErrStorageUnavailable matches any *StorageUnavailableError.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError reports input that was rejected before touching storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports that the targeted entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports an operation refused by an integrity rule, such as
// deleting a comment that still has replies.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StorageUnavailableError reports that the backing store could not be
// reached in time. The operation may be retried by the caller.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return "storage unavailable during " + e.Op + ": " + e.Err.Error()
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

func (e *StorageUnavailableError) Is(target error) bool { return target == ErrStorageUnavailable }

// classify maps a repository error onto the service taxonomy. Errors that
// are already classified pass through; unknown errors are returned as-is.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	switch {
	case repo.IsForeignKeyViolation(err):
		return &ConflictError{Reason: "referential constraint violated"}
	case repo.IsDuplicate(err):
		return &ConflictError{Reason: "comment id already exists"}
	case isUnavailable(err):
		return &StorageUnavailableError{Op: op, Err: err}
	}
	return err
}

// isUnavailable reports connectivity, timeout and lock-contention failures.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	low := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"database is locked",
		"database is closed",
		"i/o timeout",
	} {
		if strings.Contains(low, s) {
			return true
		}
	}
	return false
}
