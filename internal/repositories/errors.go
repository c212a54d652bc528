package repositories

import (
	"errors"
	"fmt"
)

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
	kindUnavailable
)

// Error is the RepositoryError used by non-Firestore backends.
type Error struct {
	Op   string
	kind errorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// NewNotFoundError reports a missing record.
func NewNotFoundError(op string) error {
	return &Error{Op: op, kind: kindNotFound, Err: errors.New("not found")}
}

// NewConflictError reports a duplicate or contended write.
func NewConflictError(op string) error {
	return &Error{Op: op, kind: kindConflict, Err: errors.New("conflict")}
}

// NewUnavailableError reports a transient backend failure.
func NewUnavailableError(op string, err error) error {
	return &Error{Op: op, kind: kindUnavailable, Err: err}
}

// IsNotFound reports whether err is a RepositoryError classified as not found.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError classified as a conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a RepositoryError classified as unavailable.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
