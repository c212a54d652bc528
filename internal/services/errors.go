package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFoodNotFound indicates a label or key that does not resolve to a catalog entry.
	ErrFoodNotFound = errors.New("food: not found")
	// ErrFoodConflict indicates a catalog entry with the same key already exists.
	ErrFoodConflict = errors.New("food: already exists")
	// ErrCultureStoryMissing indicates the catalog entry has no story to show.
	ErrCultureStoryMissing = errors.New("food: culture story missing")
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserConflict indicates a user with the same id already exists.
	ErrUserConflict = errors.New("user: already exists")
	// ErrPassportConflict indicates a check-in lost a race with a concurrent update. Retrying is safe.
	ErrPassportConflict = errors.New("passport: concurrent update")
	// ErrAuditLogNotFound indicates the audit entry does not exist.
	ErrAuditLogNotFound = errors.New("ai log: not found")
	// ErrProvinceNotFound indicates no province matches the requested name.
	ErrProvinceNotFound = errors.New("province: not found")
	// ErrStorageUnavailable indicates media uploads are not configured.
	ErrStorageUnavailable = errors.New("storage: not configured")
)

// ValidationError reports a caller mistake.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// FoodNotFoundError carries the label that failed to resolve and the ensemble confidence behind
// it so clients can show what the classifier saw.
type FoodNotFoundError struct {
	AttemptedLabel string
	Confidence     float64
}

func (e *FoodNotFoundError) Error() string {
	return fmt.Sprintf("food: no catalog entry for %q", e.AttemptedLabel)
}

func (e *FoodNotFoundError) Is(target error) bool { return target == ErrFoodNotFound }

// UpstreamError wraps a prediction service failure. Status is the upstream HTTP status, or zero
// when the service could not be reached.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("prediction service unavailable: %v", e.Err)
	}
	return fmt.Sprintf("prediction service returned %d: %v", e.Status, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", validationError(field, "is required")
	}
	return value, nil
}
