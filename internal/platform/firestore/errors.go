package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error classifies a Firestore failure for the repository layer. It satisfies
// repositories.RepositoryError.
type Error struct {
	op   string
	err  error
	code codes.Code
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.code == codes.NotFound }

// IsConflict reports a failed precondition, a duplicate create, or exhausted transaction retries.
func (e *Error) IsConflict() bool {
	if e == nil {
		return false
	}
	switch e.code {
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return true
	}
	return false
}

// IsUnavailable reports a transient backend failure.
func (e *Error) IsUnavailable() bool {
	if e == nil {
		return false
	}
	switch e.code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// WrapError attaches op and a classification to err. Context cancellation and deadlines are
// returned as the plain context errors so callers can match them with errors.Is.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.op == "" {
			existing.op = op
		}
		return existing
	}
	return &Error{op: op, err: err, code: status.Code(err)}
}
