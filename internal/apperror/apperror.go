// Package apperror defines the error kinds that cross layer boundaries.
//
// Services return *AppError values; handlers inspect them with errors.Is
// against the sentinels below and show Message to the user. Anything that
// is not an *AppError is treated as internal and never shown verbatim.
package apperror

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrSelfAction = errors.New("self action")
)

// AppError pairs a sentinel kind with the message a user may see.
type AppError struct {
	Err     error
	Message string
	// Field names the offending input or column, if any.
	Field string
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Err }

func newError(kind error, field, message string) *AppError {
	return &AppError{Err: kind, Message: message, Field: field}
}

// NotFound reports a missing row, e.g. NotFound("user", 7).
func NotFound(resource string, id any) *AppError {
	return newError(ErrNotFound, "", fmt.Sprintf("%s not found with id %v", resource, id))
}

func ValidationFailed(field, message string) *AppError {
	return newError(ErrValidation, field, message)
}

// Conflict is returned when a unique column (subject, email) is already taken.
func Conflict(field, message string) *AppError {
	return newError(ErrConflict, field, message)
}

// Forbidden means the caller may not perform the action in its current
// state, e.g. registering without having logged in first.
func Forbidden(message string) *AppError {
	return newError(ErrForbidden, "", message)
}

// SelfAction is returned when an administrator targets their own account
// with an operation that is only allowed on other users.
func SelfAction(message string) *AppError {
	return newError(ErrSelfAction, "", message)
}

// Message returns the user-facing message of the first *AppError in err's
// chain, or fallback when there is none.
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return fallback
}
